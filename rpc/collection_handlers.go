package rpc

import (
	"net/http"
	"strings"

	"vsachain/crypto"
)

type registerCollectionParams struct {
	Address string `json:"address"`
	Owner   string `json:"owner"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

type setOperatorParams struct {
	Collection string `json:"collection"`
	Operator   string `json:"operator"`
	Enabled    bool   `json:"enabled"`
}

type unitOwnerParams struct {
	Collection string `json:"collection"`
	UnitID     uint64 `json:"unitId"`
}

type balanceParams struct {
	Address string `json:"address"`
	Token   string `json:"token,omitempty"`
}

type creditParams struct {
	Address string `json:"address"`
	Token   string `json:"token,omitempty"`
	Amount  string `json:"amount"`
}

type addressParams struct {
	Address string `json:"address"`
}

// BalanceResult reports one token balance and the account nonce.
type BalanceResult struct {
	Address string `json:"address"`
	Token   string `json:"token"`
	Balance string `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

func (s *Server) methodTable() map[string]handlerSpec {
	return map[string]handlerSpec{
		"auction_create":            {fn: s.handleAuctionCreate},
		"auction_cancel":            {fn: s.handleAuctionCancel},
		"auction_placeBid":          {fn: s.handleAuctionPlaceBid},
		"auction_reveal":            {fn: s.handleAuctionReveal},
		"auction_settle":            {fn: s.handleAuctionSettle},
		"auction_claimRefund":       {fn: s.handleAuctionClaimRefund},
		"auction_get":               {fn: s.handleAuctionGet},
		"auction_list":              {fn: s.handleAuctionList},
		"auction_phase":             {fn: s.handleAuctionPhase},
		"auction_getBid":            {fn: s.handleAuctionGetBid},
		"auction_listBids":          {fn: s.handleAuctionListBids},
		"auction_previewSettlement": {fn: s.handleAuctionPreviewSettlement},
		"auction_pricePoints":       {fn: s.handleAuctionPricePoints},
		"auction_listEvents":        {fn: s.handleAuctionListEvents},
		"auction_export":            {fn: s.handleAuctionExport, admin: true},
		"collection_get":            {fn: s.handleCollectionGet},
		"collection_unitOwner":      {fn: s.handleCollectionUnitOwner},
		"collection_register":       {fn: s.handleCollectionRegister, admin: true},
		"collection_setOperator":    {fn: s.handleCollectionSetOperator, admin: true},
		"vsa_getBalance":            {fn: s.handleGetBalance},
		"vsa_getNonce":              {fn: s.handleGetNonce},
		"vsa_credit":                {fn: s.handleCredit, admin: true},
	}
}

func (s *Server) handleCollectionGet(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params addressParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeRPCError(w, req, rpcErr)
		return
	}
	addr, err := parseAddressField("address", params.Address)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	c, err := s.node.Collection(addr)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, collectionResult(c))
}

func (s *Server) handleCollectionUnitOwner(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params unitOwnerParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeRPCError(w, req, rpcErr)
		return
	}
	addr, err := parseAddressField("collection", params.Collection)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	owner, err := s.node.UnitOwner(addr, params.UnitID)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"unitId": params.UnitID, "owner": crypto.FormatAddress(owner)})
}

func (s *Server) handleCollectionRegister(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params registerCollectionParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeRPCError(w, req, rpcErr)
		return
	}
	addr, err := parseAddressField("address", params.Address)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	owner, err := parseAddressField("owner", params.Owner)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	c, err := s.node.RegisterCollection(r.Context(), addr, owner, params.Name, params.Symbol)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, collectionResult(c))
}

func (s *Server) handleCollectionSetOperator(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params setOperatorParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeRPCError(w, req, rpcErr)
		return
	}
	addr, err := parseAddressField("collection", params.Collection)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	operator, err := parseAddressField("operator", params.Operator)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	c, err := s.node.SetCollectionOperator(r.Context(), addr, operator, params.Enabled)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, collectionResult(c))
}

func (s *Server) tokenOrNative(token string) string {
	token = strings.ToUpper(strings.TrimSpace(token))
	if token == "" {
		return s.node.NativeToken()
	}
	return token
}

func (s *Server) handleGetBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params balanceParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeRPCError(w, req, rpcErr)
		return
	}
	addr, err := parseAddressField("address", params.Address)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	token := s.tokenOrNative(params.Token)
	balance, err := s.node.Balance(addr, token)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	nonce, err := s.node.Nonce(addr)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, BalanceResult{
		Address: crypto.FormatAddress(addr),
		Token:   token,
		Balance: formatAmount(balance),
		Nonce:   nonce,
	})
}

func (s *Server) handleGetNonce(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params addressParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeRPCError(w, req, rpcErr)
		return
	}
	addr, err := parseAddressField("address", params.Address)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	nonce, err := s.node.Nonce(addr)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]uint64{"nonce": nonce})
}

func (s *Server) handleCredit(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params creditParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeRPCError(w, req, rpcErr)
		return
	}
	addr, err := parseAddressField("address", params.Address)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	amount, err := parseAmount("amount", params.Amount)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	token := s.tokenOrNative(params.Token)
	if err := s.node.Credit(r.Context(), token, addr, amount); err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	balance, err := s.node.Balance(addr, token)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, BalanceResult{Address: crypto.FormatAddress(addr), Token: token, Balance: formatAmount(balance)})
}
