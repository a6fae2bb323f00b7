package approval

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/nholding/lifting-book/internal/plan/domain"
	"github.com/nholding/lifting-book/internal/plan/repository"
	"github.com/nholding/lifting-book/internal/utils"
)

func kt(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return d
}

func TestApply_RecordsTopupAndArchivesLetter(t *testing.T) {
	g := repository.NewMemoryGateway(&utils.SequenceProvider{Prefix: "p"})
	seeded := g.Seed(&domain.MonthlyEntry{
		ContractID: "c-1", Month: 7, Year: 2026,
		ProductName: "MOGAS 95", Quantity: kt("30"),
	})

	archive := NewMemoryArchive()
	svc := NewService(g, archive)

	updated, err := svc.Apply(context.Background(), seeded.ID, repository.TopupInput{
		Quantity:           kt("5"),
		AuthorityReference: "MOE/2026/114",
		Reason:             "additional winter demand",
	}, []byte("approval letter body"))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if !updated.AuthorityTopupQuantity.Equal(kt("5")) {
		t.Errorf("top-up quantity = %s, want 5", updated.AuthorityTopupQuantity)
	}
	if updated.Version != 2 {
		t.Errorf("version = %d, want server-bumped 2", updated.Version)
	}

	key := "approvals/" + seeded.ID + "/MOE/2026/114"
	if string(archive.Letters[key]) != "approval letter body" {
		t.Errorf("letter not archived under %s", key)
	}
}

func TestApply_RejectsInvalidInput(t *testing.T) {
	g := repository.NewMemoryGateway(&utils.SequenceProvider{Prefix: "p"})
	seeded := g.Seed(&domain.MonthlyEntry{ContractID: "c-1", Month: 7, Year: 2026})
	svc := NewService(g, NewMemoryArchive())

	cases := []struct {
		name string
		in   repository.TopupInput
	}{
		{"zero quantity", repository.TopupInput{Quantity: decimal.Zero, AuthorityReference: "MOE/2026/114"}},
		{"negative quantity", repository.TopupInput{Quantity: kt("-5"), AuthorityReference: "MOE/2026/114"}},
		{"missing reference", repository.TopupInput{Quantity: kt("5")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Apply(context.Background(), seeded.ID, tc.in, nil)
			var verr *domain.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *domain.ValidationError, got %v", err)
			}
		})
	}

	if got := g.Stored(seeded.ID).AuthorityTopupQuantity; !got.Equal(decimal.Zero) {
		t.Errorf("rejected top-ups must not touch the record, quantity = %s", got)
	}
}
