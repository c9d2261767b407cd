package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/hub-backorders/internal/backorder/application"
	"github.com/dmehra2102/hub-backorders/internal/backorder/domain"
)

// Client reaches the wholesale catalog over HTTP/JSON.
type Client struct {
	log     *slog.Logger
	http    *http.Client
	baseURL string
	token   string
	timeout time.Duration
	tracer  trace.Tracer
}

func NewClient(log *slog.Logger, baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		log:     log,
		http:    &http.Client{},
		baseURL: baseURL,
		token:   token,
		timeout: timeout,
		tracer:  otel.Tracer("catalog-client"),
	}
}

// ForUser returns a session acting on behalf of userID.
func (c *Client) ForUser(userID string) (application.OfferBroker, application.RemoteOrders) {
	s := &Session{c: c, userID: userID}
	return s, s
}

type Session struct {
	c      *Client
	userID string
}

type offerDTO struct {
	ID        string          `json:"id"`
	ProductID string          `json:"product_id"`
	Factor    decimal.Decimal `json:"factor"`
}

type transformationDTO struct {
	WholesaleProductID string          `json:"wholesale_product_id"`
	RetailProductID    string          `json:"retail_product_id"`
	Factor             decimal.Decimal `json:"factor"`
}

type lineDTO struct {
	OfferID   string `json:"offer_id"`
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

type orderDTO struct {
	ID            string    `json:"id,omitempty"`
	DistributorID string    `json:"distributor_id"`
	OrderCycleID  string    `json:"order_cycle_id"`
	Version       int64     `json:"version"`
	Lines         []lineDTO `json:"lines"`
}

func toDTO(b *domain.Backorder) orderDTO {
	dto := orderDTO{
		ID:            b.ID,
		DistributorID: b.Scope.DistributorID,
		OrderCycleID:  b.Scope.OrderCycleID,
		Version:       b.Version,
		Lines:         make([]lineDTO, 0, len(b.Lines)),
	}
	for _, l := range b.Lines {
		dto.Lines = append(dto.Lines, lineDTO{OfferID: l.OfferID, ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return dto
}

func (s *Session) fromDTO(dto orderDTO) *domain.Backorder {
	b := &domain.Backorder{
		ID: dto.ID,
		Scope: domain.Scope{
			UserID:        s.userID,
			DistributorID: dto.DistributorID,
			OrderCycleID:  dto.OrderCycleID,
		},
		Version: dto.Version,
		Lines:   make([]*domain.Line, 0, len(dto.Lines)),
	}
	for _, l := range dto.Lines {
		b.Lines = append(b.Lines, &domain.Line{OfferID: l.OfferID, ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return b
}

func (s *Session) BestOffer(ctx context.Context, retailLink string) (domain.Offer, error) {
	var dto offerDTO
	path := "/offers/best?product=" + url.QueryEscape(retailLink)
	if err := s.do(ctx, http.MethodGet, path, nil, nil, &dto); err != nil {
		return domain.Offer{}, fmt.Errorf("best offer for %s: %w", retailLink, err)
	}
	factor, err := domain.NewFactor(dto.Factor)
	if err != nil {
		return domain.Offer{}, fmt.Errorf("offer %s: %w", dto.ID, err)
	}
	return domain.Offer{ID: dto.ID, ProductID: dto.ProductID, Factor: factor}, nil
}

func (s *Session) WholesaleToRetail(ctx context.Context, wholesaleProductID string) (domain.Transformation, error) {
	var dto transformationDTO
	path := "/products/" + url.PathEscape(wholesaleProductID) + "/retail"
	err := s.do(ctx, http.MethodGet, path, nil, nil, &dto)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Identity(wholesaleProductID), nil
	}
	if err != nil {
		return domain.Transformation{}, fmt.Errorf("transformation of %s: %w", wholesaleProductID, err)
	}
	factor, err := domain.NewFactor(dto.Factor)
	if err != nil {
		return domain.Transformation{}, fmt.Errorf("transformation of %s: %w", wholesaleProductID, err)
	}
	return domain.Transformation{
		WholesaleProductID: wholesaleProductID,
		RetailProductID:    dto.RetailProductID,
		Factor:             factor,
	}, nil
}

func (s *Session) FindOpen(ctx context.Context, scope domain.Scope) (*domain.Backorder, error) {
	var dto orderDTO
	q := url.Values{}
	q.Set("distributor", scope.DistributorID)
	q.Set("order_cycle", scope.OrderCycleID)
	err := s.do(ctx, http.MethodGet, "/orders/open?"+q.Encode(), nil, nil, &dto)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewDraft(scope), nil
	}
	if err != nil {
		return nil, fmt.Errorf("find open backorder %s: %w", scope, err)
	}
	b := s.fromDTO(dto)
	b.Scope = scope
	return b, nil
}

func (s *Session) FindByID(ctx context.Context, id string) (*domain.Backorder, error) {
	var dto orderDTO
	if err := s.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(id), nil, nil, &dto); err != nil {
		return nil, fmt.Errorf("find backorder %s: %w", id, err)
	}
	return s.fromDTO(dto), nil
}

// Send creates the order when b is a draft and otherwise replaces it,
// conditional on b.Version.
func (s *Session) Send(ctx context.Context, b *domain.Backorder) error {
	var out orderDTO
	if b.IsDraft() {
		if err := s.do(ctx, http.MethodPost, "/orders", nil, toDTO(b), &out); err != nil {
			return fmt.Errorf("create backorder %s: %w", b.Scope, err)
		}
		b.ID = out.ID
	} else {
		h := http.Header{}
		h.Set("If-Match", strconv.FormatInt(b.Version, 10))
		if err := s.do(ctx, http.MethodPut, "/orders/"+url.PathEscape(b.ID), h, toDTO(b), &out); err != nil {
			return fmt.Errorf("update backorder %s: %w", b.ID, err)
		}
	}
	b.Version = out.Version
	return nil
}

func (s *Session) Complete(ctx context.Context, b *domain.Backorder) error {
	h := http.Header{}
	h.Set("If-Match", strconv.FormatInt(b.Version, 10))
	if err := s.do(ctx, http.MethodPost, "/orders/"+url.PathEscape(b.ID)+"/complete", h, toDTO(b), nil); err != nil {
		return fmt.Errorf("complete backorder %s: %w", b.ID, err)
	}
	return nil
}

func (s *Session) do(ctx context.Context, method, path string, header http.Header, in, out any) error {
	ctx, span := s.c.tracer.Start(ctx, method+" "+routeOf(path), trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.c.baseURL+path, body)
	if err != nil {
		return err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.c.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.c.token)
	}
	req.Header.Set("X-Acting-User", s.userID)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := s.c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		return fmt.Errorf("%w: %v", domain.ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if err := statusError(resp); err != nil {
		span.SetStatus(codes.Error, resp.Status)
		return err
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrNotFound
	case resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusPreconditionFailed:
		return domain.ErrVersionConflict
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", domain.ErrRemoteUnavailable, resp.StatusCode)
	default:
		return fmt.Errorf("catalog rejected request: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
}

// routeOf strips the query so span names stay low-cardinality.
func routeOf(path string) string {
	if u, err := url.Parse(path); err == nil {
		return u.Path
	}
	return path
}
