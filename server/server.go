package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stablemint/crypto"
	"stablemint/native/collateral"
	nativecommon "stablemint/native/common"
	"stablemint/observability"
)

const requestLimit = 1 << 20 // 1 MiB

// Server exposes the accounting engine over HTTP.
type Server struct {
	engine *collateral.Engine
	logger *slog.Logger
	pauses *nativecommon.Switch
}

// New constructs a server around the engine. The pause switch is optional;
// when nil the admin pause endpoints report an error.
func New(engine *collateral.Engine, logger *slog.Logger, pauses *nativecommon.Switch) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{engine: engine, logger: logger, pauses: pauses}
}

// Router assembles the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestID)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/collateral/deposit", s.instrument("deposit_collateral", s.depositCollateral))
		r.Post("/collateral/redeem", s.instrument("redeem_collateral", s.redeemCollateral))
		r.Post("/collateral/deposit-and-mint", s.instrument("deposit_and_mint", s.depositAndMint))
		r.Post("/collateral/redeem-and-burn", s.instrument("redeem_and_burn", s.redeemAndBurn))
		r.Post("/debt/mint", s.instrument("mint_debt", s.mintDebt))
		r.Post("/debt/burn", s.instrument("burn_debt", s.burnDebt))
		r.Post("/liquidations", s.instrument("liquidate", s.liquidate))

		r.Get("/accounts/{address}", s.getAccount)
		r.Get("/accounts/{address}/collateral/{asset}", s.getCollateralBalance)
		r.Get("/convert", s.convert)
		r.Get("/assets", s.listAssets)

		r.Post("/admin/pause", s.adminPause)
		r.Post("/admin/resume", s.adminResume)
	})

	return r
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-Id"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

// instrument wraps a mutating handler with logging and metrics.
func (s *Server) instrument(operation string, handler func(*http.Request) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		payload, err := handler(r)
		elapsed := time.Since(start)
		observability.Engine().Observe(operation, err, elapsed)
		if err != nil {
			s.logger.Warn("operation failed",
				slog.String("operation", operation),
				slog.String("error", err.Error()),
				slog.Duration("elapsed", elapsed),
			)
			writeError(w, err)
			return
		}
		s.logger.Info("operation committed",
			slog.String("operation", operation),
			slog.Duration("elapsed", elapsed),
		)
		if payload == nil {
			payload = map[string]string{"status": "ok"}
		}
		writeJSON(w, http.StatusOK, payload)
	}
}

func decodeRequest(r *http.Request, out any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, requestLimit))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func parseAddress(value string) (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return crypto.Address{}, fmt.Errorf("invalid address %q: %w", value, err)
	}
	return addr, nil
}

func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	return amount, nil
}

type collateralRequest struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
	Amount  string `json:"amount"`
}

func (s *Server) depositCollateral(r *http.Request) (any, error) {
	var req collateralRequest
	if err := decodeRequest(r, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	account, err := parseAddress(req.Account)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil, s.engine.DepositCollateral(account, req.Asset, amount)
}

func (s *Server) redeemCollateral(r *http.Request) (any, error) {
	var req collateralRequest
	if err := decodeRequest(r, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	account, err := parseAddress(req.Account)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil, s.engine.RedeemCollateral(account, req.Asset, amount)
}

type debtRequest struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

func (s *Server) mintDebt(r *http.Request) (any, error) {
	var req debtRequest
	if err := decodeRequest(r, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	account, err := parseAddress(req.Account)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil, s.engine.MintDebt(account, amount)
}

func (s *Server) burnDebt(r *http.Request) (any, error) {
	var req debtRequest
	if err := decodeRequest(r, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	account, err := parseAddress(req.Account)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil, s.engine.BurnDebt(account, amount)
}

type depositAndMintRequest struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
	Deposit string `json:"deposit"`
	Mint    string `json:"mint"`
}

func (s *Server) depositAndMint(r *http.Request) (any, error) {
	var req depositAndMintRequest
	if err := decodeRequest(r, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	account, err := parseAddress(req.Account)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	deposit, err := parseAmount(req.Deposit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	mint, err := parseAmount(req.Mint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil, s.engine.DepositAndMint(account, req.Asset, deposit, mint)
}

type redeemAndBurnRequest struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
	Redeem  string `json:"redeem"`
	Burn    string `json:"burn"`
}

func (s *Server) redeemAndBurn(r *http.Request) (any, error) {
	var req redeemAndBurnRequest
	if err := decodeRequest(r, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	account, err := parseAddress(req.Account)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	redeem, err := parseAmount(req.Redeem)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	burn, err := parseAmount(req.Burn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil, s.engine.RedeemAndBurn(account, req.Asset, redeem, burn)
}

type liquidationRequest struct {
	Liquidator  string `json:"liquidator"`
	Target      string `json:"target"`
	Asset       string `json:"asset"`
	DebtToCover string `json:"debtToCover"`
}

type liquidationResponse struct {
	DebtCovered       string `json:"debtCovered"`
	CollateralSeized  string `json:"collateralSeized"`
	StartHealthFactor string `json:"startHealthFactor"`
	EndHealthFactor   string `json:"endHealthFactor"`
}

func (s *Server) liquidate(r *http.Request) (any, error) {
	var req liquidationRequest
	if err := decodeRequest(r, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	liquidator, err := parseAddress(req.Liquidator)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	target, err := parseAddress(req.Target)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	debtToCover, err := parseAmount(req.DebtToCover)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	receipt, err := s.engine.Liquidate(liquidator, target, req.Asset, debtToCover)
	if err != nil {
		return nil, err
	}
	observability.Engine().ObserveLiquidation()
	return liquidationResponse{
		DebtCovered:       receipt.DebtCovered.String(),
		CollateralSeized:  receipt.CollateralSeized.String(),
		StartHealthFactor: receipt.StartHealthFactor.String(),
		EndHealthFactor:   receipt.EndHealthFactor.String(),
	}, nil
}

type accountResponse struct {
	Address       string `json:"address"`
	CollateralUSD string `json:"collateralUsd"`
	Debt          string `json:"debt"`
	HealthFactor  string `json:"healthFactor"`
}

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	info, err := s.engine.AccountInfo(account)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accountResponse{
		Address:       info.Address.String(),
		CollateralUSD: info.CollateralUSD.String(),
		Debt:          info.Debt.String(),
		HealthFactor:  info.HealthFactor.String(),
	})
}

type balanceResponse struct {
	Address string `json:"address"`
	Asset   string `json:"asset"`
	Amount  string `json:"amount"`
}

func (s *Server) getCollateralBalance(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	asset := chi.URLParam(r, "asset")
	amount, err := s.engine.CollateralBalance(account, asset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{
		Address: account.String(),
		Asset:   collateral.NormalizeSymbol(asset),
		Amount:  amount.String(),
	})
}

type convertResponse struct {
	Asset  string `json:"asset"`
	USD    string `json:"usd"`
	Amount string `json:"amount"`
}

func (s *Server) convert(w http.ResponseWriter, r *http.Request) {
	asset := r.URL.Query().Get("asset")
	usd, err := parseAmount(r.URL.Query().Get("usd"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	amount, err := s.engine.AssetAmountForUSD(asset, usd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, convertResponse{
		Asset:  collateral.NormalizeSymbol(asset),
		USD:    usd.String(),
		Amount: amount.String(),
	})
}

type assetResponse struct {
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

func (s *Server) listAssets(w http.ResponseWriter, _ *http.Request) {
	assets := s.engine.Assets()
	out := make([]assetResponse, 0, len(assets))
	for _, asset := range assets {
		out = append(out, assetResponse{Symbol: asset.Symbol, Decimals: asset.Decimals})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) adminPause(w http.ResponseWriter, _ *http.Request) {
	if s.pauses == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "pause switch not configured"})
		return
	}
	s.pauses.Pause("collateral")
	s.logger.Info("module paused", slog.String("module", "collateral"))
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (s *Server) adminResume(w http.ResponseWriter, _ *http.Request) {
	if s.pauses == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "pause switch not configured"})
		return
	}
	s.pauses.Resume("collateral")
	s.logger.Info("module resumed", slog.String("module", "collateral"))
	writeJSON(w, http.StatusOK, map[string]string{"status": "running"})
}
