package quotes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/fleetdash/fleetdash/internal/documents"
	"github.com/fleetdash/fleetdash/internal/pricing"
	"github.com/fleetdash/fleetdash/internal/shared"
	"github.com/fleetdash/fleetdash/internal/workflow"
)

// Notifier is told after every persisted quote change.
type Notifier interface {
	Bump(ctx context.Context) error
}

// Mailer queues the outbound quote email.
type Mailer interface {
	EnqueueQuoteSend(ctx context.Context, quoteID int64, recipient string) error
}

// DocumentStore persists stage attachments.
type DocumentStore interface {
	Upload(ctx context.Context, r io.Reader, meta documents.Metadata) (string, error)
}

// AuditRecorder writes audit trail entries.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// TransitionObserver receives workflow metrics.
type TransitionObserver interface {
	ObserveTransition(stage, action, status string)
	ObserveWriteConflict()
}

// Deps bundles optional collaborators. Nil members are skipped.
type Deps struct {
	Documents DocumentStore
	Mailer    Mailer
	Notifier  Notifier
	Audit     AuditRecorder
	Metrics   TransitionObserver
	Clock     func() time.Time
}

// Service applies quote mutations as load, transform, whole-document write.
type Service struct {
	repo     Repository
	deps     Deps
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

// NewService constructs a quote service.
func NewService(repo Repository, logger *slog.Logger, deps Deps) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		repo:     repo,
		deps:     deps,
		logger:   logger.With(slog.String("component", "quotes")),
		validate: newValidator(),
		now:      now,
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (s *Service) validateStruct(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		ns := fe.Namespace()
		if idx := strings.Index(ns, "."); idx >= 0 {
			ns = ns[idx+1:]
		}
		fields = append(fields, ns)
	}
	return shared.NewValidationError("invalid request", fields...)
}

// ============================================================================
// READS
// ============================================================================

// Get loads a quote.
func (s *Service) Get(ctx context.Context, id int64) (*Quote, error) {
	q, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get quote: %w", err)
	}
	return &q, nil
}

// List returns every quote.
func (s *Service) List(ctx context.Context) ([]Quote, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list quotes: %w", err)
	}
	return list, nil
}

// ============================================================================
// QUOTE BUILDING
// ============================================================================

// Create starts a draft quote with no parts.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Quote, error) {
	req.CustomerDetails = trimCustomer(req.CustomerDetails)
	if err := s.validateStruct(req); err != nil {
		return nil, err
	}
	now := s.now()
	q := Quote{
		Status:          workflow.Status(workflow.StatusDraft),
		StatusSource:    SourceDirect,
		CustomerDetails: req.CustomerDetails,
		Parts:           []pricing.Part{},
		Total:           decimal.Zero,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	saved, err := s.repo.Insert(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("insert quote: %w", err)
	}
	s.afterWrite(ctx, &saved, "quote.create", nil)
	return &saved, nil
}

// SetCustomer replaces the customer snapshot.
func (s *Service) SetCustomer(ctx context.Context, id int64, details CustomerDetails) (*Quote, error) {
	details = trimCustomer(details)
	if err := s.validateStruct(details); err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, "quote.customer.update", nil, func(q *Quote) error {
		if err := editable(q); err != nil {
			return err
		}
		q.CustomerDetails = details
		return nil
	})
}

// AddPart prices a vehicle and appends it to the quote.
func (s *Service) AddPart(ctx context.Context, id int64, req AddPartRequest) (*Quote, error) {
	if err := s.validateStruct(req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Product.ID) == "" {
		return nil, shared.NewValidationError("product id required", "product.id")
	}
	master := req.Product.RetailPrice
	if req.MasterPrice != nil {
		master = *req.MasterPrice
	}
	part, err := pricing.NewPart(req.Product, req.Quantity, master, req.MasterDiscount)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, "quote.part.add", map[string]any{"product": req.Product.ID}, func(q *Quote) error {
		if err := editable(q); err != nil {
			return err
		}
		q.Parts = append(q.Parts, part)
		return nil
	})
}

// UpdatePartDiscount re-prices one part.
func (s *Service) UpdatePartDiscount(ctx context.Context, id int64, index int, req DiscountRequest) (*Quote, error) {
	meta := map[string]any{"index": index, "discount": req.MasterDiscount.String()}
	return s.mutate(ctx, id, "quote.part.discount", meta, func(q *Quote) error {
		if err := editable(q); err != nil {
			return err
		}
		part, err := partAt(q, index)
		if err != nil {
			return err
		}
		return part.ApplyDiscount(req.MasterDiscount)
	})
}

// AddAccessory prices an accessory and attaches it to a part.
func (s *Service) AddAccessory(ctx context.Context, id int64, index int, req AddAccessoryRequest) (*Quote, error) {
	if err := s.validateStruct(req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Product.ID) == "" {
		return nil, shared.NewValidationError("product id required", "product.id")
	}
	master := req.Product.RetailPrice
	if req.MasterPrice != nil {
		master = *req.MasterPrice
	}
	acc, err := pricing.NewAccessory(req.Product, req.Quantity, master, req.MasterDiscount)
	if err != nil {
		return nil, err
	}
	meta := map[string]any{"index": index, "product": req.Product.ID}
	return s.mutate(ctx, id, "quote.part.accessory.add", meta, func(q *Quote) error {
		if err := editable(q); err != nil {
			return err
		}
		part, err := partAt(q, index)
		if err != nil {
			return err
		}
		return part.AddAccessory(acc)
	})
}

// RemovePart drops one part.
func (s *Service) RemovePart(ctx context.Context, id int64, index int) (*Quote, error) {
	return s.mutate(ctx, id, "quote.part.remove", map[string]any{"index": index}, func(q *Quote) error {
		if err := editable(q); err != nil {
			return err
		}
		if _, err := partAt(q, index); err != nil {
			return err
		}
		q.Parts = append(q.Parts[:index], q.Parts[index+1:]...)
		return nil
	})
}

// SetTradeIn stores the opaque trade-in valuation. An empty or null body clears it.
func (s *Service) SetTradeIn(ctx context.Context, id int64, raw json.RawMessage) (*Quote, error) {
	trimmed := bytes.TrimSpace(raw)
	var tradeIn json.RawMessage
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if trimmed[0] != '{' || !json.Valid(trimmed) {
			return nil, shared.NewValidationError("trade-in must be a JSON object", "tradeIn")
		}
		tradeIn = append(json.RawMessage(nil), trimmed...)
	}
	return s.mutate(ctx, id, "quote.tradein.update", nil, func(q *Quote) error {
		if err := editable(q); err != nil {
			return err
		}
		q.TradeIn = tradeIn
		return nil
	})
}

// SetBankRef sets the free-text bank reference. Allowed at any point of the lifecycle.
func (s *Service) SetBankRef(ctx context.Context, id int64, req BankRefRequest) (*Quote, error) {
	if err := s.validateStruct(req); err != nil {
		return nil, err
	}
	ref := strings.TrimSpace(req.BankRef)
	return s.mutate(ctx, id, "quote.bankref.update", map[string]any{"bankRef": ref}, func(q *Quote) error {
		q.BankRef = ref
		return nil
	})
}

// ============================================================================
// PRE-APPROVAL STATUS
// ============================================================================

// Send moves a draft to Sent and queues the quote email.
func (s *Service) Send(ctx context.Context, id int64) (*Quote, error) {
	q, err := s.mutate(ctx, id, "quote.send", nil, func(q *Quote) error {
		if err := requirePreApproval(q, workflow.StatusDraft, workflow.StatusSent); err != nil {
			return err
		}
		if len(q.Parts) == 0 {
			return shared.NewValidationError("quote has no parts", "parts")
		}
		if err := s.validateStruct(q.CustomerDetails); err != nil {
			return err
		}
		now := s.now()
		q.Status = workflow.Status(workflow.StatusSent)
		q.StatusSource = SourceDirect
		q.SentAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.deps.Mailer != nil {
		if err := s.deps.Mailer.EnqueueQuoteSend(ctx, q.ID, q.CustomerDetails.Email); err != nil {
			s.logger.Warn("enqueue quote email", slog.Int64("quote_id", q.ID), slog.Any("error", err))
		}
	}
	return q, nil
}

// Approve records the client's acceptance (Client Approved).
func (s *Service) Approve(ctx context.Context, id int64) (*Quote, error) {
	return s.mutate(ctx, id, "quote.approve", nil, func(q *Quote) error {
		if err := requirePreApproval(q, workflow.StatusDraft, workflow.StatusSent, workflow.StatusClientApproved); err != nil {
			return err
		}
		q.Status = workflow.Status(workflow.StatusClientApproved)
		q.StatusSource = SourceDirect
		return nil
	})
}

// SetStatus sets a pre-approval status directly. Only pre-approval values are
// accepted and only before the fulfillment workflow starts.
func (s *Service) SetStatus(ctx context.Context, id int64, value string) (*Quote, error) {
	status, err := workflow.ParsePreApproval(value)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, "quote.status.set", map[string]any{"status": value}, func(q *Quote) error {
		if workflow.Started(q.WorkflowStages) {
			return &shared.InvalidStatusError{Value: value, Reason: "fulfillment workflow already started"}
		}
		q.Status = workflow.Status(status)
		q.StatusSource = SourceDirect
		return nil
	})
}

// ForceStatus overrides the kanban column without touching stages.
func (s *Service) ForceStatus(ctx context.Context, id int64, value string) (*Quote, error) {
	status, err := workflow.ParseFulfillment(value)
	if err != nil {
		return nil, err
	}
	q, err := s.mutate(ctx, id, "quote.status.force", map[string]any{"status": value}, func(q *Quote) error {
		q.Status = workflow.Status(status)
		q.StatusSource = SourceManual
		return nil
	})
	if err != nil {
		return nil, err
	}
	derived := workflow.DeriveStatus(q.WorkflowStages)
	if workflow.Started(q.WorkflowStages) && derived != status {
		s.logger.Warn("manual status override diverges from stages",
			slog.Int64("quote_id", q.ID),
			slog.String("forced", string(status)),
			slog.String("derived", string(derived)),
			slog.String("rule", workflow.MatchedRule(q.WorkflowStages)),
		)
	}
	s.observe("kanban", "force", q.Status)
	return q, nil
}

// ============================================================================
// WORKFLOW STAGES
// ============================================================================

// CompleteStage validates the payload, marks the stage completed and re-derives the status.
func (s *Service) CompleteStage(ctx context.Context, id int64, key workflow.StageKey, payload map[string]string) (*Quote, error) {
	def, err := workflow.Lookup(key)
	if err != nil {
		return nil, err
	}
	if err := def.Validate(payload); err != nil {
		return nil, err
	}
	q, err := s.mutate(ctx, id, "quote.stage.complete", map[string]any{"stage": string(key)}, func(q *Quote) error {
		next, err := workflow.Complete(q.WorkflowStages, key, payload, s.now())
		if err != nil {
			return err
		}
		applyStages(q, next)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.observe(string(key), "complete", q.Status)
	return q, nil
}

// SkipStage marks the optional stage as bypassed.
func (s *Service) SkipStage(ctx context.Context, id int64, key workflow.StageKey, notes string) (*Quote, error) {
	def, err := workflow.Lookup(key)
	if err != nil {
		return nil, err
	}
	if !def.Skippable {
		return nil, shared.NewValidationError(fmt.Sprintf("stage %s cannot be skipped", key), "skipped")
	}
	q, err := s.mutate(ctx, id, "quote.stage.skip", map[string]any{"stage": string(key)}, func(q *Quote) error {
		next, err := workflow.Skip(q.WorkflowStages, key, notes, s.now())
		if err != nil {
			return err
		}
		applyStages(q, next)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.observe(string(key), "skip", q.Status)
	return q, nil
}

// ResetStage clears a stage back to pending. The status may regress.
func (s *Service) ResetStage(ctx context.Context, id int64, key workflow.StageKey) (*Quote, error) {
	if _, err := workflow.Lookup(key); err != nil {
		return nil, err
	}
	q, err := s.mutate(ctx, id, "quote.stage.reset", map[string]any{"stage": string(key)}, func(q *Quote) error {
		next, err := workflow.Reset(q.WorkflowStages, key)
		if err != nil {
			return err
		}
		applyStages(q, next)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.observe(string(key), "reset", q.Status)
	return q, nil
}

// ApplyTransition dispatches a {stage, data} request: skipped=true skips,
// an explicit completed=false resets, anything else completes.
func (s *Service) ApplyTransition(ctx context.Context, id int64, req TransitionRequest) (*TransitionResponse, error) {
	if err := s.validateStruct(req); err != nil {
		return nil, err
	}
	key := workflow.StageKey(req.Stage)
	def, err := workflow.Lookup(key)
	if err != nil {
		return nil, err
	}
	completed, skipped, fields, err := parseTransitionData(req.Data)
	if err != nil {
		return nil, err
	}

	var (
		q    *Quote
		verb string
	)
	switch {
	case skipped != nil && *skipped:
		if completed != nil && *completed {
			return nil, shared.NewValidationError("stage cannot be both completed and skipped", "completed", "skipped")
		}
		q, err = s.SkipStage(ctx, id, key, fields[workflow.FieldNotes])
		verb = "skipped"
	case completed != nil && !*completed:
		q, err = s.ResetStage(ctx, id, key)
		verb = "reset"
	default:
		q, err = s.CompleteStage(ctx, id, key, fields)
		verb = "completed"
	}
	if err != nil {
		return nil, err
	}
	return &TransitionResponse{
		Message: fmt.Sprintf("%s %s", def.Title, verb),
		Quote:   q,
	}, nil
}

// UploadDocument stores a stage attachment for an existing quote and returns
// its URL. The quote document itself is not modified.
func (s *Service) UploadDocument(ctx context.Context, id int64, r io.Reader, meta documents.Metadata) (string, error) {
	if s.deps.Documents == nil {
		return "", errors.New("document storage not configured")
	}
	if meta.Stage != "" {
		if _, err := workflow.Lookup(workflow.StageKey(meta.Stage)); err != nil {
			return "", err
		}
	}
	q, err := s.repo.Get(ctx, id)
	if err != nil {
		return "", fmt.Errorf("get quote: %w", err)
	}
	meta.QuoteID = q.ID
	url, err := s.deps.Documents.Upload(ctx, r, meta)
	if err != nil {
		return "", err
	}
	s.audit(ctx, q.ID, "quote.document.upload", map[string]any{"stage": meta.Stage, "url": url})
	return url, nil
}

// ============================================================================
// INTERNALS
// ============================================================================

// mutate loads the quote, applies fn to a copy and writes the whole document
// back. Nothing is written when fn fails.
func (s *Service) mutate(ctx context.Context, id int64, action string, meta map[string]any, fn func(*Quote) error) (*Quote, error) {
	loaded, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get quote: %w", err)
	}
	next := loaded.Clone()
	if err := fn(&next); err != nil {
		return nil, err
	}
	for i, part := range next.Parts {
		if err := part.Validate(); err != nil {
			return nil, fmt.Errorf("part %d: %w", i, err)
		}
	}
	next.Total = pricing.QuoteTotal(next.Parts)
	next.UpdatedAt = s.now()

	res, err := s.repo.Put(ctx, next)
	if err != nil {
		return nil, fmt.Errorf("put quote: %w", err)
	}
	if res.Conflict {
		s.logger.Warn("concurrent quote write",
			slog.Int64("quote_id", next.ID),
			slog.Int64("loaded_version", loaded.Version),
			slog.Int64("new_version", res.Version),
			slog.String("action", action),
		)
		if s.deps.Metrics != nil {
			s.deps.Metrics.ObserveWriteConflict()
		}
	}
	next.Version = res.Version
	s.afterWrite(ctx, &next, action, meta)
	return &next, nil
}

func (s *Service) afterWrite(ctx context.Context, q *Quote, action string, meta map[string]any) {
	if s.deps.Notifier != nil {
		if err := s.deps.Notifier.Bump(ctx); err != nil {
			s.logger.Warn("invalidate stats cache", slog.Int64("quote_id", q.ID), slog.Any("error", err))
		}
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["status"] = string(q.Status)
	meta["statusSource"] = string(q.StatusSource)
	s.audit(ctx, q.ID, action, meta)
}

func (s *Service) audit(ctx context.Context, id int64, action string, meta map[string]any) {
	if s.deps.Audit == nil {
		return
	}
	err := s.deps.Audit.Record(ctx, shared.AuditLog{
		Actor:    shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "quote",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("record audit", slog.Int64("quote_id", id), slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) observe(stage, action string, status workflow.Status) {
	if s.deps.Metrics == nil {
		return
	}
	s.deps.Metrics.ObserveTransition(stage, action, string(status))
}

// applyStages stores next and re-derives the status. An untouched workflow
// leaves the status and its source as they were.
func applyStages(q *Quote, next workflow.Stages) {
	q.WorkflowStages = next
	if !workflow.Started(next) {
		return
	}
	q.Status = workflow.Status(workflow.DeriveStatus(next))
	q.StatusSource = SourceDerived
}

func editable(q *Quote) error {
	if q.Approved() {
		return &shared.InvalidStatusError{Value: string(q.Status), Reason: "quote is locked once approved"}
	}
	return nil
}

func requirePreApproval(q *Quote, allowed ...workflow.PreApprovalStatus) error {
	if workflow.Started(q.WorkflowStages) {
		return &shared.InvalidStatusError{Value: string(q.Status), Reason: "fulfillment workflow already started"}
	}
	current, ok := q.Status.PreApproval()
	if ok {
		for _, a := range allowed {
			if current == a {
				return nil
			}
		}
	}
	return &shared.InvalidStatusError{Value: string(q.Status), Reason: "not allowed from current status"}
}

func partAt(q *Quote, index int) (*pricing.Part, error) {
	if index < 0 || index >= len(q.Parts) {
		return nil, shared.NewValidationError(fmt.Sprintf("part index %d out of range", index), "index")
	}
	return &q.Parts[index], nil
}

func trimCustomer(c CustomerDetails) CustomerDetails {
	c.RecipientName = strings.TrimSpace(c.RecipientName)
	c.CompanyName = strings.TrimSpace(c.CompanyName)
	c.Email = strings.TrimSpace(c.Email)
	c.Phone = strings.TrimSpace(c.Phone)
	c.ClientID = strings.TrimSpace(c.ClientID)
	return c
}

func parseTransitionData(data map[string]json.RawMessage) (completed, skipped *bool, fields map[string]string, err error) {
	fields = make(map[string]string, len(data))
	for k, raw := range data {
		if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			continue
		}
		switch k {
		case "completed", "skipped":
			var b bool
			if err := json.Unmarshal(raw, &b); err != nil {
				return nil, nil, nil, shared.NewValidationError(k+" must be a boolean", k)
			}
			if k == "completed" {
				completed = &b
			} else {
				skipped = &b
			}
		default:
			var str string
			if err := json.Unmarshal(raw, &str); err != nil {
				return nil, nil, nil, shared.NewValidationError(k+" must be a string", k)
			}
			fields[k] = str
		}
	}
	return completed, skipped, fields, nil
}
