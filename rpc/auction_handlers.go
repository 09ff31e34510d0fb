package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"vsachain/integrations/archive"
	"vsachain/integrations/exports"
	"vsachain/native/auction"
)

type createAuctionPayload struct {
	Collection           string `json:"collection"`
	FundsRecipient       string `json:"fundsRecipient"`
	Currency             string `json:"currency,omitempty"`
	MinimumViableRevenue string `json:"minimumViableRevenue"`
	StartTime            int64  `json:"startTime,omitempty"`
	BidDuration          int64  `json:"bidDuration"`
	RevealDuration       int64  `json:"revealDuration"`
	SettleDuration       int64  `json:"settleDuration"`
}

type collectionPayload struct {
	Collection string `json:"collection"`
}

type placeBidPayload struct {
	Collection string `json:"collection"`
	Commitment string `json:"commitment"`
	Value      string `json:"value"`
}

type revealPayload struct {
	Collection string `json:"collection"`
	Amount     string `json:"amount"`
	Salt       string `json:"salt"`
}

type settlePayload struct {
	Collection string `json:"collection"`
	Price      string `json:"price"`
}

type bidQuery struct {
	Collection string `json:"collection"`
	Bidder     string `json:"bidder"`
}

type priceQuery struct {
	Collection string `json:"collection"`
	Price      string `json:"price"`
}

type listEventsQuery struct {
	Collection string   `json:"collection,omitempty"`
	Types      []string `json:"types,omitempty"`
	AfterSeq   uint64   `json:"afterSeq,omitempty"`
	Limit      int      `json:"limit,omitempty"`
}

type exportQuery struct {
	Collection string `json:"collection"`
	Format     string `json:"format,omitempty"`
}

// ArchivedEvent is one row returned by auction_listEvents.
type ArchivedEvent struct {
	Seq        uint64            `json:"seq"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	RecordedAt int64             `json:"recordedAt"`
}

// decodeParams decodes the single object parameter of an unsigned method.
func decodeParams(req *RPCRequest, out interface{}) *RPCError {
	if len(req.Params) != 1 {
		return &RPCError{Code: codeInvalidParams, Message: "expected a single parameter object"}
	}
	decoder := json.NewDecoder(bytes.NewReader(req.Params[0]))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid %s parameters", req.Method), Data: err.Error()}
	}
	return nil
}

func invalidParams(w http.ResponseWriter, req *RPCRequest, err error) {
	writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
}

func writeRPCError(w http.ResponseWriter, req *RPCRequest, rpcErr *RPCError) {
	status := http.StatusBadRequest
	if rpcErr.Code == codeUnauthorized {
		status = http.StatusUnauthorized
	}
	writeError(w, status, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
}

func (s *Server) handleAuctionCreate(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var payload createAuctionPayload
	caller, rpcErr := verifySigned(req, &payload)
	if rpcErr != nil {
		writeRPCError(w, req, rpcErr)
		return
	}
	collectionAddr, err := parseAddressField("collection", payload.Collection)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	recipient, err := parseAddressField("fundsRecipient", payload.FundsRecipient)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	minimum, err := parseAmount("minimumViableRevenue", payload.MinimumViableRevenue)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	created, err := s.node.CreateAuction(r.Context(), caller, auction.CreateParams{
		Collection:           collectionAddr,
		SellerFundsRecipient: recipient,
		Currency:             payload.Currency,
		MinimumViableRevenue: minimum,
		StartTime:            payload.StartTime,
		BidDuration:          payload.BidDuration,
		RevealDuration:       payload.RevealDuration,
		SettleDuration:       payload.SettleDuration,
	})
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, auctionResult(created, s.node.Now()))
}

func (s *Server) handleAuctionCancel(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var payload collectionPayload
	caller, rpcErr := verifySigned(req, &payload)
	if rpcErr != nil {
		writeRPCError(w, req, rpcErr)
		return
	}
	collectionAddr, err := parseAddressField("collection", payload.Collection)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	if err := s.node.CancelAuction(r.Context(), caller, collectionAddr); err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"cancelled": true})
}

func (s *Server) handleAuctionPlaceBid(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var payload placeBidPayload
	caller, rpcErr := verifySigned(req, &payload)
	if rpcErr != nil {
		writeRPCError(w, req, rpcErr)
		return
	}
	collectionAddr, err := parseAddressField("collection", payload.Collection)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	commitment, err := parseBytes32("commitment", payload.Commitment)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	value, err := parseAmount("value", payload.Value)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	bid, err := s.node.PlaceBid(r.Context(), caller, collectionAddr, commitment, value)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, bidResult(bid))
}

func (s *Server) handleAuctionReveal(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var payload revealPayload
	caller, rpcErr := verifySigned(req, &payload)
	if rpcErr != nil {
		writeRPCError(w, req, rpcErr)
		return
	}
	collectionAddr, err := parseAddressField("collection", payload.Collection)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	amount, err := parseAmount("amount", payload.Amount)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	salt, err := parseBytes32("salt", payload.Salt)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	bid, err := s.node.RevealBid(r.Context(), caller, collectionAddr, amount, salt)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, bidResult(bid))
}

func (s *Server) handleAuctionSettle(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var payload settlePayload
	caller, rpcErr := verifySigned(req, &payload)
	if rpcErr != nil {
		writeRPCError(w, req, rpcErr)
		return
	}
	collectionAddr, err := parseAddressField("collection", payload.Collection)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	price, err := parseAmount("price", payload.Price)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	settlement, err := s.node.SettleAuction(r.Context(), caller, collectionAddr, price)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, settlementResult(settlement))
}

func (s *Server) handleAuctionClaimRefund(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var payload collectionPayload
	caller, rpcErr := verifySigned(req, &payload)
	if rpcErr != nil {
		writeRPCError(w, req, rpcErr)
		return
	}
	collectionAddr, err := parseAddressField("collection", payload.Collection)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	amount, err := s.node.ClaimRefund(r.Context(), caller, collectionAddr)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"amount": formatAmount(amount)})
}

func (s *Server) handleAuctionGet(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params collectionPayload
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeRPCError(w, req, rpcErr)
		return
	}
	collectionAddr, err := parseAddressField("collection", params.Collection)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	a, err := s.node.Auction(collectionAddr)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, auctionResult(a, s.node.Now()))
}

func (s *Server) handleAuctionList(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	all, err := s.node.Auctions()
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	now := s.node.Now()
	out := make([]AuctionResult, 0, len(all))
	for _, a := range all {
		out = append(out, auctionResult(a, now))
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleAuctionPhase(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params collectionPayload
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeRPCError(w, req, rpcErr)
		return
	}
	collectionAddr, err := parseAddressField("collection", params.Collection)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	phase, err := s.node.AuctionPhase(collectionAddr)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"phase": phase.String(), "time": s.node.Now()})
}

func (s *Server) handleAuctionGetBid(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params bidQuery
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeRPCError(w, req, rpcErr)
		return
	}
	collectionAddr, err := parseAddressField("collection", params.Collection)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	bidder, err := parseAddressField("bidder", params.Bidder)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	bid, err := s.node.Bid(collectionAddr, bidder)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, bidResult(bid))
}

func (s *Server) handleAuctionListBids(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params collectionPayload
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeRPCError(w, req, rpcErr)
		return
	}
	collectionAddr, err := parseAddressField("collection", params.Collection)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	bids, err := s.node.Bids(collectionAddr)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	out := make([]BidResult, 0, len(bids))
	for _, bid := range bids {
		out = append(out, bidResult(bid))
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleAuctionPreviewSettlement(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params priceQuery
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeRPCError(w, req, rpcErr)
		return
	}
	collectionAddr, err := parseAddressField("collection", params.Collection)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	price, err := parseAmount("price", params.Price)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	preview, err := s.node.PreviewSettlement(collectionAddr, price)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, settlementResult(preview))
}

func (s *Server) handleAuctionPricePoints(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params collectionPayload
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeRPCError(w, req, rpcErr)
		return
	}
	collectionAddr, err := parseAddressField("collection", params.Collection)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	points, err := s.node.PricePoints(collectionAddr)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	out := make([]PricePointResult, 0, len(points))
	for _, p := range points {
		out = append(out, PricePointResult{Price: formatAmount(p.Price), EditionSize: p.EditionSize, Revenue: formatAmount(p.Revenue)})
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleAuctionListEvents(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if s.archive == nil {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeInternal, "event archive not enabled", nil)
		return
	}
	var params listEventsQuery
	if len(req.Params) > 0 {
		if rpcErr := decodeParams(req, &params); rpcErr != nil {
			writeRPCError(w, req, rpcErr)
			return
		}
	}
	query := archive.Query{Types: params.Types, AfterSeq: params.AfterSeq, Limit: params.Limit}
	if params.Collection != "" {
		collectionAddr, err := parseAddressField("collection", params.Collection)
		if err != nil {
			invalidParams(w, req, err)
			return
		}
		query.Collection = hex.EncodeToString(collectionAddr[:])
	}
	records, err := s.archive.List(r.Context(), query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeInternal, "failed to list events", err.Error())
		return
	}
	out := make([]ArchivedEvent, 0, len(records))
	for _, rec := range records {
		evt, err := rec.Event()
		if err != nil {
			writeError(w, http.StatusInternalServerError, req.ID, codeInternal, "corrupt archive row", err.Error())
			return
		}
		out = append(out, ArchivedEvent{Seq: rec.Seq, Type: evt.Type, Attributes: evt.Attributes, RecordedAt: rec.CreatedAt.Unix()})
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleAuctionExport(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if s.exporter == nil {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeInternal, "exports not configured", nil)
		return
	}
	var params exportQuery
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeRPCError(w, req, rpcErr)
		return
	}
	collectionAddr, err := parseAddressField("collection", params.Collection)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	a, err := s.node.Auction(collectionAddr)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	bids, err := s.node.Bids(collectionAddr)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	report, err := s.exporter.Export(params.Format, hex.EncodeToString(collectionAddr[:]), exports.SettlementRows(a, bids))
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	writeResult(w, req.ID, report)
}
