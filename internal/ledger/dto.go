package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PostVoucherRequest is the JSON body for manual voucher posting.
type PostVoucherRequest struct {
	SourceID string            `json:"source_id" validate:"required,uuid4"`
	Date     string            `json:"date" validate:"required,datetime=2006-01-02"`
	Memo     string            `json:"memo"`
	Lines    []PostLineRequest `json:"lines" validate:"required,min=2,dive"`
}

// PostLineRequest is one requested voucher line.
type PostLineRequest struct {
	AccountCode string `json:"account_code" validate:"required"`
	Type        string `json:"type" validate:"required,oneof=DEBIT CREDIT"`
	Amount      string `json:"amount" validate:"required"`
	Description string `json:"description"`
}

// ToPostingInput converts the request to a manual posting input.
func (req PostVoucherRequest) ToPostingInput(actorID int64) (PostingInput, error) {
	sourceID, err := uuid.Parse(req.SourceID)
	if err != nil {
		return PostingInput{}, err
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return PostingInput{}, err
	}
	lines := make([]LineInput, 0, len(req.Lines))
	for _, line := range req.Lines {
		amount, err := decimal.NewFromString(line.Amount)
		if err != nil {
			return PostingInput{}, err
		}
		lines = append(lines, LineInput{
			AccountCode: line.AccountCode,
			Type:        EntryType(line.Type),
			Amount:      amount,
			Description: line.Description,
		})
	}
	return PostingInput{
		SourceType: SourceManual,
		SourceID:   sourceID,
		Date:       date,
		Memo:       req.Memo,
		CreatedBy:  actorID,
		Lines:      lines,
	}, nil
}

// ReverseVoucherRequest is the JSON body for voucher reversal.
type ReverseVoucherRequest struct {
	Memo string `json:"memo"`
}

// VoucherResponse is the JSON view of a voucher.
type VoucherResponse struct {
	ID             int64           `json:"id"`
	Number         string          `json:"number"`
	SourceType     string          `json:"source_type"`
	SourceID       string          `json:"source_id"`
	Status         string          `json:"status"`
	Date           string          `json:"date"`
	Memo           string          `json:"memo"`
	ReversalNumber *string         `json:"reversal_number,omitempty"`
	Entries        []EntryResponse `json:"entries,omitempty"`
}

// EntryResponse is the JSON view of a ledger entry.
type EntryResponse struct {
	ID          int64  `json:"id"`
	Voucher     string `json:"voucher"`
	AccountCode string `json:"account_code"`
	Type        string `json:"type"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
	Date        string `json:"date"`
}

func toVoucherResponse(v Voucher, entries []Entry) VoucherResponse {
	resp := VoucherResponse{
		ID:             v.ID,
		Number:         v.Number,
		SourceType:     string(v.SourceType),
		SourceID:       v.SourceID.String(),
		Status:         string(v.Status),
		Date:           v.Date.Format("2006-01-02"),
		Memo:           v.Memo,
		ReversalNumber: v.ReversalNumber,
	}
	for _, entry := range entries {
		resp.Entries = append(resp.Entries, toEntryResponse(entry))
	}
	return resp
}

func toEntryResponse(e Entry) EntryResponse {
	return EntryResponse{
		ID:          e.ID,
		Voucher:     e.Number,
		AccountCode: e.AccountCode,
		Type:        string(e.Type),
		Amount:      e.Amount.StringFixed(2),
		Description: e.Description,
		Date:        e.Date.Format("2006-01-02"),
	}
}
