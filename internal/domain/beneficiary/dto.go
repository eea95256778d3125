package beneficiary

import (
	"database/sql"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CreateRequest struct {
	ID                   string          `json:"id" validate:"omitempty,uuid"`
	WorkspaceID          string          `json:"workspace_id" validate:"required,uuid"`
	Kind                 string          `json:"kind" validate:"required,oneof=PARTNER SELLER ORGANIZATION_LEADER"`
	DisplayName          string          `json:"display_name" validate:"required,max=200"`
	Email                string          `json:"email" validate:"required,email"`
	PayoutMethod         string          `json:"payout_method" validate:"omitempty,payout_method"`
	ConnectAccountID     string          `json:"connect_account_id"`
	AggregatorEmail      string          `json:"aggregator_email" validate:"omitempty,email"`
	BankAccountName      string          `json:"bank_account_name"`
	BankIBAN             string          `json:"bank_iban"`
	OrganizationLeaderID string          `json:"organization_leader_id" validate:"omitempty,uuid"`
	LeaderSplitPercent   decimal.Decimal `json:"leader_split_percent"`
	ReferrerID           string          `json:"referrer_id" validate:"omitempty,uuid"`
	ReferrerSplitPercent decimal.Decimal `json:"referrer_split_percent"`
}

func (r CreateRequest) toEntity() *Beneficiary {
	b := &Beneficiary{
		WorkspaceID:          uuid.MustParse(r.WorkspaceID),
		Kind:                 Kind(r.Kind),
		DisplayName:          r.DisplayName,
		Email:                r.Email,
		PayoutMethod:         PayoutMethod(r.PayoutMethod),
		ConnectAccountID:     nullString(r.ConnectAccountID),
		AggregatorEmail:      nullString(r.AggregatorEmail),
		BankAccountName:      nullString(r.BankAccountName),
		BankIBAN:             nullString(r.BankIBAN),
		LeaderSplitPercent:   r.LeaderSplitPercent,
		ReferrerSplitPercent: r.ReferrerSplitPercent,
	}
	if r.ID != "" {
		b.ID = uuid.MustParse(r.ID)
	}
	if r.OrganizationLeaderID != "" {
		b.OrganizationLeaderID = uuid.NullUUID{UUID: uuid.MustParse(r.OrganizationLeaderID), Valid: true}
	}
	if r.ReferrerID != "" {
		b.ReferrerID = uuid.NullUUID{UUID: uuid.MustParse(r.ReferrerID), Valid: true}
	}
	return b
}

type PayoutMethodRequest struct {
	PayoutMethod     string `json:"payout_method" validate:"required,payout_method"`
	ConnectAccountID string `json:"connect_account_id"`
	AggregatorEmail  string `json:"aggregator_email" validate:"omitempty,email"`
	BankAccountName  string `json:"bank_account_name"`
	BankIBAN         string `json:"bank_iban"`
}

// Response hides raw destination details.
type Response struct {
	*Beneficiary
	Destination string `json:"destination"`
}

func toResponse(b *Beneficiary) Response {
	return Response{Beneficiary: b, Destination: b.MaskedDestination()}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
