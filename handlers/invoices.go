package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/yourusername/billdesk/billing"
	"github.com/yourusername/billdesk/middleware"
	"github.com/yourusername/billdesk/models"
	"github.com/yourusername/billdesk/money"
)

type InvoiceHandler struct {
	service       *billing.Service
	currencies    money.Table
	maxProofBytes int64
	log           zerolog.Logger
}

func NewInvoiceHandler(service *billing.Service, currencies money.Table, maxProofBytes int64, log zerolog.Logger) *InvoiceHandler {
	return &InvoiceHandler{
		service:       service,
		currencies:    currencies,
		maxProofBytes: maxProofBytes,
		log:           log.With().Str("component", "http").Logger(),
	}
}

type LineItemRequest struct {
	Description string          `json:"description" binding:"required"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type RecurrenceRequest struct {
	Frequency      string `json:"frequency" binding:"required"`
	EndDate        *Date  `json:"end_date"`
	SendOnGenerate *bool  `json:"send_on_generate"`
}

type CreateInvoiceRequest struct {
	// AccountID is only honoured for admins; owners always bill as themselves.
	AccountID  *uuid.UUID         `json:"account_id"`
	ClientID   uuid.UUID          `json:"client_id"`
	Currency   string             `json:"currency" binding:"required,len=3"`
	Items      []LineItemRequest  `json:"items" binding:"required,min=1,dive"`
	IssueDate  *Date              `json:"issue_date"`
	DueDate    *Date              `json:"due_date"`
	Notes      string             `json:"notes"`
	Terms      string             `json:"terms"`
	Recurrence *RecurrenceRequest `json:"recurrence"`
}

type UpdateDraftRequest struct {
	ClientID  *uuid.UUID        `json:"client_id"`
	Items     []LineItemRequest `json:"items" binding:"omitempty,min=1,dive"`
	IssueDate *Date             `json:"issue_date"`
	DueDate   *Date             `json:"due_date"`
	Notes     *string           `json:"notes"`
	Terms     *string           `json:"terms"`
}

type RecordPaymentRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Method    string          `json:"method"`
	Date      *Date           `json:"date"`
	Reference string          `json:"reference"`
	Notes     string          `json:"notes"`
}

type ReviewRequest struct {
	Comment string `json:"comment"`
}

type TickRequest struct {
	Now *time.Time `json:"now"`
}

func lineItems(req []LineItemRequest) []billing.LineItemInput {
	if req == nil {
		return nil
	}
	items := make([]billing.LineItemInput, len(req))
	for i, item := range req {
		items[i] = billing.LineItemInput{
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		}
	}
	return items
}

func canAccess(inv *models.Invoice, subject uuid.UUID, role string) bool {
	switch role {
	case middleware.RoleAdmin:
		return true
	case middleware.RoleOwner:
		return inv.AccountID == subject
	case middleware.RoleClient:
		return inv.ClientID == subject
	default:
		return false
	}
}

// authorize loads the invoice named in the path and checks the caller may see
// it. Invoices outside the caller's scope are reported as not found.
func (h *InvoiceHandler) authorize(c *gin.Context) (*models.Invoice, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid invoice id"})
		return nil, false
	}
	subject, role, ok := middleware.Principal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return nil, false
	}
	inv, err := h.service.GetInvoice(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	if !canAccess(inv, subject, role) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Invoice not found", "code": "NotFound"})
		return nil, false
	}
	return inv, true
}

func (h *InvoiceHandler) CreateInvoice(c *gin.Context) {
	var req CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	subject, role, _ := middleware.Principal(c)

	account := subject
	if role == middleware.RoleAdmin {
		if req.AccountID == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "account_id is required for admins"})
			return
		}
		account = *req.AccountID
	}

	in := billing.CreateInvoiceInput{
		AccountID: account,
		ClientID:  req.ClientID,
		Currency:  req.Currency,
		Items:     lineItems(req.Items),
		IssueDate: req.IssueDate.value(),
		DueDate:   req.DueDate.value(),
		Notes:     req.Notes,
		Terms:     req.Terms,
	}
	if req.Recurrence != nil {
		in.Recurrence = &billing.RecurrenceInput{
			Frequency:      models.Frequency(req.Recurrence.Frequency),
			EndDate:        req.Recurrence.EndDate.ptr(),
			SendOnGenerate: req.Recurrence.SendOnGenerate,
		}
	}

	inv, err := h.service.CreateInvoice(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, h.invoiceResponse(inv))
}

func (h *InvoiceHandler) ListInvoices(c *gin.Context) {
	subject, role, _ := middleware.Principal(c)

	var filter billing.ListInvoicesFilter
	if status := c.Query("status"); status != "" {
		s, err := models.ParseInvoiceStatus(status)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		filter.Status = s
	}
	if raw := c.Query("client_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid client_id"})
			return
		}
		filter.ClientID = &id
	}
	switch role {
	case middleware.RoleOwner:
		filter.AccountID = &subject
	case middleware.RoleAdmin:
		if raw := c.Query("account_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid account_id"})
				return
			}
			filter.AccountID = &id
		}
	}
	filter.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	filter.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	invoices, err := h.service.ListInvoices(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]InvoiceResponse, 0, len(invoices))
	for i := range invoices {
		out = append(out, h.invoiceResponse(&invoices[i]))
	}
	c.JSON(http.StatusOK, out)
}

func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
	inv, ok := h.authorize(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.invoiceResponse(inv))
}

func (h *InvoiceHandler) UpdateDraft(c *gin.Context) {
	current, ok := h.authorize(c)
	if !ok {
		return
	}
	var req UpdateDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	inv, err := h.service.UpdateDraft(c.Request.Context(), billing.UpdateDraftInput{
		InvoiceID: current.ID,
		ClientID:  req.ClientID,
		Items:     lineItems(req.Items),
		IssueDate: req.IssueDate.ptr(),
		DueDate:   req.DueDate.ptr(),
		Notes:     req.Notes,
		Terms:     req.Terms,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.invoiceResponse(inv))
}

func (h *InvoiceHandler) DeleteInvoice(c *gin.Context) {
	current, ok := h.authorize(c)
	if !ok {
		return
	}
	if err := h.service.DeleteInvoice(c.Request.Context(), current.ID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *InvoiceHandler) SendInvoice(c *gin.Context) {
	current, ok := h.authorize(c)
	if !ok {
		return
	}
	inv, err := h.service.SendInvoice(c.Request.Context(), current.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.invoiceResponse(inv))
}

func (h *InvoiceHandler) CancelInvoice(c *gin.Context) {
	current, ok := h.authorize(c)
	if !ok {
		return
	}
	inv, err := h.service.CancelInvoice(c.Request.Context(), current.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.invoiceResponse(inv))
}

func (h *InvoiceHandler) RecordPayment(c *gin.Context) {
	current, ok := h.authorize(c)
	if !ok {
		return
	}
	var req RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	inv, payment, err := h.service.RecordPayment(c.Request.Context(), billing.RecordPaymentInput{
		InvoiceID: current.ID,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Method:    models.PaymentMethod(req.Method),
		Date:      req.Date.value(),
		Reference: req.Reference,
		Notes:     req.Notes,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"invoice": h.invoiceResponse(inv),
		"payment": h.paymentResponse(payment),
	})
}

func (h *InvoiceHandler) ListPayments(c *gin.Context) {
	current, ok := h.authorize(c)
	if !ok {
		return
	}
	payments, err := h.service.ListPayments(c.Request.Context(), current.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]PaymentResponse, 0, len(payments))
	for i := range payments {
		out = append(out, h.paymentResponse(&payments[i]))
	}
	c.JSON(http.StatusOK, out)
}

func (h *InvoiceHandler) GetBalance(c *gin.Context) {
	current, ok := h.authorize(c)
	if !ok {
		return
	}
	bal, err := h.service.GetBalance(c.Request.Context(), current.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	cur := h.lookup(bal.Currency)
	c.JSON(http.StatusOK, BalanceResponse{
		Currency:  bal.Currency,
		Total:     newAmount(bal.Total, cur),
		Paid:      newAmount(bal.Paid, cur),
		Remaining: newAmount(bal.Remaining, cur),
	})
}

// SubmitProof accepts a multipart upload with a `file` part, or a `blob_ref`
// naming an artifact already stored, plus an optional `reference`.
func (h *InvoiceHandler) SubmitProof(c *gin.Context) {
	current, ok := h.authorize(c)
	if !ok {
		return
	}

	in := billing.SubmitProofInput{
		InvoiceID:     current.ID,
		BlobRef:       c.PostForm("blob_ref"),
		ReferenceText: c.PostForm("reference"),
	}
	if in.BlobRef == "" {
		fh, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "A proof file is required"})
			return
		}
		if h.maxProofBytes > 0 && fh.Size > h.maxProofBytes {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Proof file is too large", "code": "Validation"})
			return
		}
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unreadable proof file"})
			return
		}
		defer f.Close()
		if in.Blob, err = io.ReadAll(f); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unreadable proof file"})
			return
		}
		in.ContentType = fh.Header.Get("Content-Type")
		if in.ContentType == "" || in.ContentType == "application/octet-stream" {
			in.ContentType = http.DetectContentType(in.Blob)
		}
	}

	inv, proof, err := h.service.SubmitProof(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"invoice": h.invoiceResponse(inv),
		"proof":   proof,
	})
}

// GetProof returns the proof under review with its artifact base64-encoded,
// or the raw artifact when called with ?download=1.
func (h *InvoiceHandler) GetProof(c *gin.Context) {
	current, ok := h.authorize(c)
	if !ok {
		return
	}
	proof, blob, err := h.service.GetActiveProof(c.Request.Context(), current.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	contentType := blob.ContentType
	if contentType == "" {
		contentType = proof.ContentType
	}
	if contentType == "" {
		contentType = http.DetectContentType(blob.Data)
	}
	if download, _ := strconv.ParseBool(c.Query("download")); download {
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-proof"`, current.InvoiceNumber))
		c.Data(http.StatusOK, contentType, blob.Data)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"proof": proof,
		"artifact": gin.H{
			"ref":          blob.Ref,
			"content_type": contentType,
			"size":         blob.Size,
			"data":         blob.Data,
		},
	})
}

func (h *InvoiceHandler) ConfirmPayment(c *gin.Context) {
	current, ok := h.authorize(c)
	if !ok {
		return
	}
	var req ReviewRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	inv, err := h.service.ConfirmPayment(c.Request.Context(), billing.ConfirmInput{
		InvoiceID:       current.ID,
		ReviewerComment: req.Comment,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.invoiceResponse(inv))
}

func (h *InvoiceHandler) RejectProof(c *gin.Context) {
	current, ok := h.authorize(c)
	if !ok {
		return
	}
	var req ReviewRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	inv, err := h.service.RejectProof(c.Request.Context(), billing.RejectInput{
		InvoiceID:       current.ID,
		ReviewerComment: req.Comment,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.invoiceResponse(inv))
}

// RunRecurrenceTick generates due recurring instances. Failures for single
// templates are reported alongside the generated invoices.
func (h *InvoiceHandler) RunRecurrenceTick(c *gin.Context) {
	var req TickRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	now := time.Now().UTC()
	if req.Now != nil {
		now = *req.Now
	}

	report, err := h.service.RunRecurrenceTick(c.Request.Context(), now)
	if report == nil {
		respondError(c, err)
		return
	}

	generated := make([]InvoiceResponse, 0, len(report.Generated))
	for i := range report.Generated {
		generated = append(generated, h.invoiceResponse(&report.Generated[i]))
	}
	failures := make([]gin.H, 0, len(report.Failures))
	for _, f := range report.Failures {
		failures = append(failures, gin.H{
			"template_id": f.TemplateID,
			"period":      f.Period.Format(time.DateOnly),
			"error":       f.Err.Error(),
		})
	}
	if err != nil {
		h.log.Warn().Err(err).Int("failures", len(failures)).Msg("recurrence tick finished with failures")
	}
	c.JSON(http.StatusOK, gin.H{"generated": generated, "failures": failures})
}
