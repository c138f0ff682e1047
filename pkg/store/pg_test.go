package store

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chainscope/bridge-sentinel/pkg/model"
	"github.com/chainscope/bridge-sentinel/pkg/pgutil"
	mghelper "github.com/chainscope/bridge-sentinel/pkg/pgutil/migrations"
	"github.com/chainscope/bridge-sentinel/pkg/store/dao"
)

func setupStore(t *testing.T) (context.Context, *Store) {
	t.Helper()
	requireDockerAccess(t)

	ctx := context.Background()
	db, cleanup := pgutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	if err := mghelper.CreateSchema(ctx, db,
		&dao.BridgeTransactionDao{},
		&dao.CrossChainLinkDao{},
		&dao.APIKeyDao{},
	); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	return ctx, New(db)
}

func requireDockerAccess(t *testing.T) {
	t.Helper()

	candidates := []string{
		"/var/run/docker.sock",
		filepath.Join(os.Getenv("HOME"), ".docker/run/docker.sock"),
	}

	for _, sock := range candidates {
		if sock == "" {
			continue
		}
		if _, err := os.Stat(sock); err != nil {
			continue
		}
		conn, err := (&net.Dialer{}).DialContext(context.Background(), "unix", sock)
		if err == nil {
			_ = conn.Close()
			return
		}
	}

	t.Skip("docker daemon socket is not accessible; skipping testcontainer-backed store tests")
}

func newTestTransaction(id string, opts ...func(*model.BridgeTransaction)) *model.BridgeTransaction {
	tx := &model.BridgeTransaction{
		ID:              id,
		BridgeProtocol:  model.ProtocolWormhole,
		SourceChain:     "ethereum",
		EventType:       "TransferTokens",
		TokenAddress:    "0x00000000000000000000000000000000000000aa",
		Amount:          "100",
		SourceAddress:   "0x0000000000000000000000000000000000001111",
		TransactionHash: "0x" + id,
		BlockNumber:     18000000,
		Timestamp:       time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	for _, opt := range opts {
		opt(tx)
	}
	return tx
}

func newTestLink(id string, txIDs []string) *model.CrossChainLink {
	return &model.CrossChainLink{
		ID:                       id,
		SourceWalletAddress:      "0x0000000000000000000000000000000000001111",
		DestinationWalletAddress: "0x0000000000000000000000000000000000002222",
		SourceChain:              "ethereum",
		DestinationChain:         "polygon",
		LinkType:                 model.LinkTypeBridgeTransfer,
		Confidence:               model.ConfidenceConfirmed,
		TokenAddress:             "0x00000000000000000000000000000000000000aa",
		TotalAmount:              "200",
		TransactionCount:         len(txIDs),
		FirstSeenAt:              time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		LastSeenAt:               time.Date(2024, 6, 1, 12, 0, 30, 0, time.UTC),
		RiskScore:                10,
		RiskFlags:                []string{},
		Metadata: model.LinkMetadata{
			Score:             140,
			MatchedEventTypes: []string{"TransferTokens", "TransferRedeemed"},
			Protocol:          model.ProtocolWormhole,
		},
		BridgeTransactionIDs: txIDs,
	}
}

func TestInsertTransactionIdempotent(t *testing.T) {
	ctx, s := setupStore(t)

	tx := newTestTransaction("tx-1")
	inserted, err := s.InsertTransaction(ctx, tx)
	if err != nil {
		t.Fatalf("InsertTransaction() failed: %v", err)
	}
	if !inserted {
		t.Fatalf("expected first insert to report a new row")
	}

	// Same hash and protocol under a different id is the same observation.
	replay := newTestTransaction("tx-1-replay")
	replay.TransactionHash = tx.TransactionHash
	inserted, err = s.InsertTransaction(ctx, replay)
	if err != nil {
		t.Fatalf("InsertTransaction() replay failed: %v", err)
	}
	if inserted {
		t.Fatalf("expected replayed transaction to be dropped")
	}

	got, err := s.GetTransaction(ctx, "tx-1")
	if err != nil {
		t.Fatalf("GetTransaction() failed: %v", err)
	}
	if got.BridgeProtocol != model.ProtocolWormhole || got.SourceChain != "ethereum" {
		t.Fatalf("unexpected stored transaction: %+v", got)
	}
	if got.Processed {
		t.Fatalf("new transaction must start unprocessed")
	}
}

func assertDecimalEqual(t *testing.T, got, want string) {
	t.Helper()

	gotDec, err := decimal.NewFromString(got)
	if err != nil {
		t.Fatalf("failed to parse got decimal %q: %v", got, err)
	}
	wantDec, err := decimal.NewFromString(want)
	if err != nil {
		t.Fatalf("failed to parse want decimal %q: %v", want, err)
	}
	if !gotDec.Equal(wantDec) {
		t.Fatalf("decimal mismatch: got %s want %s", gotDec.String(), wantDec.String())
	}
}

func TestTransactionRawUnitAmounts(t *testing.T) {
	ctx, s := setupStore(t)

	// 2.5e23 raw units: 250k tokens of an 18-decimal asset. The amount
	// column must hold the full width without overflow or rounding.
	const whaleAmount = "250000000000000000000000"
	tx := newTestTransaction("whale", func(tx *model.BridgeTransaction) {
		tx.Amount = whaleAmount
	})
	inserted, err := s.InsertTransaction(ctx, tx)
	if err != nil {
		t.Fatalf("InsertTransaction() failed: %v", err)
	}
	if !inserted {
		t.Fatalf("expected whale transaction to insert")
	}

	got, err := s.GetTransaction(ctx, "whale")
	if err != nil {
		t.Fatalf("GetTransaction() failed: %v", err)
	}
	assertDecimalEqual(t, got.Amount, whaleAmount)

	// The tolerance search must work at this magnitude too.
	candidates, err := s.FindUnprocessedCandidates(ctx, CandidateQuery{
		Protocol:        model.ProtocolWormhole,
		TokenAddress:    tx.TokenAddress,
		Amount:          decimal.RequireFromString("250500000000000000000000"),
		AmountTolerance: 0.01,
		Center:          tx.Timestamp,
		TimeWindow:      5 * time.Minute,
		ExcludeID:       "self",
	})
	if err != nil {
		t.Fatalf("FindUnprocessedCandidates() failed: %v", err)
	}
	if len(candidates) != 1 || candidates[0].ID != "whale" {
		t.Fatalf("expected whale candidate, got %+v", candidates)
	}

	link := newTestLink("whale-link", []string{"whale", "counterpart"})
	link.TotalAmount = "500000000000000000000000"
	if err := s.InsertLink(ctx, link); err != nil {
		t.Fatalf("InsertLink() failed: %v", err)
	}
	gotLink, err := s.GetLink(ctx, "whale-link")
	if err != nil {
		t.Fatalf("GetLink() failed: %v", err)
	}
	assertDecimalEqual(t, gotLink.TotalAmount, "500000000000000000000000")
}

func TestGetTransactionNotFound(t *testing.T) {
	ctx, s := setupStore(t)

	_, err := s.GetTransaction(ctx, "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got: %v", err)
	}
}

func TestFindUnprocessedCandidates(t *testing.T) {
	ctx, s := setupStore(t)
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	seed := []*model.BridgeTransaction{
		newTestTransaction("match-close", func(tx *model.BridgeTransaction) {
			tx.SourceChain = "polygon"
			tx.Amount = "100.5"
			tx.Timestamp = base.Add(30 * time.Second)
		}),
		newTestTransaction("match-far", func(tx *model.BridgeTransaction) {
			tx.SourceChain = "polygon"
			tx.Amount = "99.2"
			tx.Timestamp = base.Add(3 * time.Minute)
		}),
		newTestTransaction("wrong-token", func(tx *model.BridgeTransaction) {
			tx.TokenAddress = "0x00000000000000000000000000000000000000bb"
			tx.Timestamp = base.Add(10 * time.Second)
		}),
		newTestTransaction("wrong-protocol", func(tx *model.BridgeTransaction) {
			tx.BridgeProtocol = model.ProtocolStargate
			tx.EventType = "Swap"
			tx.Timestamp = base.Add(10 * time.Second)
		}),
		newTestTransaction("amount-off", func(tx *model.BridgeTransaction) {
			tx.Amount = "150"
			tx.Timestamp = base.Add(10 * time.Second)
		}),
		newTestTransaction("too-old", func(tx *model.BridgeTransaction) {
			tx.Timestamp = base.Add(-20 * time.Minute)
		}),
	}
	for _, tx := range seed {
		if _, err := s.InsertTransaction(ctx, tx); err != nil {
			t.Fatalf("seed insert %s failed: %v", tx.ID, err)
		}
	}

	got, err := s.FindUnprocessedCandidates(ctx, CandidateQuery{
		Protocol:        model.ProtocolWormhole,
		TokenAddress:    "0x00000000000000000000000000000000000000aa",
		Amount:          decimal.RequireFromString("100"),
		AmountTolerance: 0.05,
		Center:          base,
		TimeWindow:      5 * time.Minute,
		ExcludeID:       "self",
		Limit:           10,
	})
	if err != nil {
		t.Fatalf("FindUnprocessedCandidates() failed: %v", err)
	}

	if len(got) != 2 {
		ids := make([]string, len(got))
		for i, tx := range got {
			ids[i] = tx.ID
		}
		t.Fatalf("expected 2 candidates, got %d: %v", len(got), ids)
	}
	if got[0].ID != "match-close" || got[1].ID != "match-far" {
		t.Fatalf("expected timestamp-ordered candidates, got %s, %s", got[0].ID, got[1].ID)
	}
}

func TestFindUnprocessedCandidatesSkipsProcessed(t *testing.T) {
	ctx, s := setupStore(t)
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	tx := newTestTransaction("claimed", func(tx *model.BridgeTransaction) {
		tx.Timestamp = base
	})
	if _, err := s.InsertTransaction(ctx, tx); err != nil {
		t.Fatalf("seed insert failed: %v", err)
	}
	if err := s.MarkProcessed(ctx, []string{"claimed"}, "link-x"); err != nil {
		t.Fatalf("MarkProcessed() failed: %v", err)
	}

	got, err := s.FindUnprocessedCandidates(ctx, CandidateQuery{
		Protocol:        model.ProtocolWormhole,
		TokenAddress:    tx.TokenAddress,
		Amount:          decimal.RequireFromString("100"),
		AmountTolerance: 0.05,
		Center:          base,
		TimeWindow:      5 * time.Minute,
		ExcludeID:       "self",
	})
	if err != nil {
		t.Fatalf("FindUnprocessedCandidates() failed: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no candidates, got %d", len(got))
	}
}

func TestMarkProcessedConflictRollsBack(t *testing.T) {
	ctx, s := setupStore(t)

	free := newTestTransaction("free")
	taken := newTestTransaction("taken", func(tx *model.BridgeTransaction) {
		tx.TransactionHash = "0xtaken"
	})
	for _, tx := range []*model.BridgeTransaction{free, taken} {
		if _, err := s.InsertTransaction(ctx, tx); err != nil {
			t.Fatalf("seed insert failed: %v", err)
		}
	}

	if err := s.MarkProcessed(ctx, []string{"taken"}, "link-first"); err != nil {
		t.Fatalf("first MarkProcessed() failed: %v", err)
	}

	err := s.MarkProcessed(ctx, []string{"free", "taken"}, "link-second")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got: %v", err)
	}

	// The untouched leg must remain matchable after the partial rollback.
	got, err := s.GetTransaction(ctx, "free")
	if err != nil {
		t.Fatalf("GetTransaction() failed: %v", err)
	}
	if got.Processed || got.LinkedLinkID != nil {
		t.Fatalf("expected free leg released, got processed=%v link=%v", got.Processed, got.LinkedLinkID)
	}

	// The winner keeps its claim.
	got, err = s.GetTransaction(ctx, "taken")
	if err != nil {
		t.Fatalf("GetTransaction() failed: %v", err)
	}
	if !got.Processed || got.LinkedLinkID == nil || *got.LinkedLinkID != "link-first" {
		t.Fatalf("expected taken leg to stay with link-first, got %+v", got)
	}
}

func TestRevertProcessedReleasesLegs(t *testing.T) {
	ctx, s := setupStore(t)

	a := newTestTransaction("leg-a")
	b := newTestTransaction("leg-b", func(tx *model.BridgeTransaction) {
		tx.TransactionHash = "0xlegb"
	})
	for _, tx := range []*model.BridgeTransaction{a, b} {
		if _, err := s.InsertTransaction(ctx, tx); err != nil {
			t.Fatalf("seed insert failed: %v", err)
		}
	}

	if err := s.MarkProcessed(ctx, []string{"leg-a", "leg-b"}, "link-doomed"); err != nil {
		t.Fatalf("MarkProcessed() failed: %v", err)
	}
	if err := s.RevertProcessed(ctx, "link-doomed"); err != nil {
		t.Fatalf("RevertProcessed() failed: %v", err)
	}

	for _, id := range []string{"leg-a", "leg-b"} {
		got, err := s.GetTransaction(ctx, id)
		if err != nil {
			t.Fatalf("GetTransaction(%s) failed: %v", id, err)
		}
		if got.Processed || got.LinkedLinkID != nil {
			t.Fatalf("expected %s released, got processed=%v", id, got.Processed)
		}
	}
}

func TestListUnprocessedSince(t *testing.T) {
	ctx, s := setupStore(t)
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	newer := newTestTransaction("newer", func(tx *model.BridgeTransaction) {
		tx.Timestamp = base.Add(time.Minute)
	})
	older := newTestTransaction("older", func(tx *model.BridgeTransaction) {
		tx.TransactionHash = "0xolder"
		tx.Timestamp = base.Add(-time.Hour)
	})
	claimed := newTestTransaction("linked", func(tx *model.BridgeTransaction) {
		tx.TransactionHash = "0xlinked"
		tx.Timestamp = base.Add(time.Minute)
	})
	for _, tx := range []*model.BridgeTransaction{newer, older, claimed} {
		if _, err := s.InsertTransaction(ctx, tx); err != nil {
			t.Fatalf("seed insert failed: %v", err)
		}
	}
	if err := s.MarkProcessed(ctx, []string{"linked"}, "link-y"); err != nil {
		t.Fatalf("MarkProcessed() failed: %v", err)
	}

	got, err := s.ListUnprocessedSince(ctx, base)
	if err != nil {
		t.Fatalf("ListUnprocessedSince() failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "newer" {
		t.Fatalf("expected only the recent unprocessed transaction, got %+v", got)
	}
}

func TestLinkRoundTripAndWalletLookup(t *testing.T) {
	ctx, s := setupStore(t)

	link := newTestLink("link-1", []string{"tx-a", "tx-b"})
	if err := s.InsertLink(ctx, link); err != nil {
		t.Fatalf("InsertLink() failed: %v", err)
	}

	got, err := s.GetLink(ctx, "link-1")
	if err != nil {
		t.Fatalf("GetLink() failed: %v", err)
	}
	if got.LinkType != model.LinkTypeBridgeTransfer || got.Confidence != model.ConfidenceConfirmed {
		t.Fatalf("unexpected stored link: %+v", got)
	}
	if got.Metadata.Score != 140 || got.Metadata.Protocol != model.ProtocolWormhole {
		t.Fatalf("metadata did not round trip: %+v", got.Metadata)
	}
	if len(got.BridgeTransactionIDs) != 2 {
		t.Fatalf("expected 2 transaction ids, got %v", got.BridgeTransactionIDs)
	}

	// The wallet lookup matches either side of the link.
	for _, wallet := range []string{link.SourceWalletAddress, link.DestinationWalletAddress} {
		links, err := s.LinksByWallet(ctx, wallet, 10)
		if err != nil {
			t.Fatalf("LinksByWallet(%s) failed: %v", wallet, err)
		}
		if len(links) != 1 || links[0].ID != "link-1" {
			t.Fatalf("expected link-1 for wallet %s, got %+v", wallet, links)
		}
	}

	links, err := s.LinksByWallet(ctx, "0x0000000000000000000000000000000000009999", 10)
	if err != nil {
		t.Fatalf("LinksByWallet() failed: %v", err)
	}
	if len(links) != 0 {
		t.Fatalf("expected no links for unknown wallet, got %d", len(links))
	}
}

func TestLinkStats(t *testing.T) {
	ctx, s := setupStore(t)

	for i := 0; i < 3; i++ {
		link := newTestLink(fmt.Sprintf("bt-%d", i), []string{fmt.Sprintf("a%d", i), fmt.Sprintf("b%d", i)})
		if err := s.InsertLink(ctx, link); err != nil {
			t.Fatalf("InsertLink() failed: %v", err)
		}
	}
	weak := newTestLink("weak", []string{"c1", "c2"})
	weak.LinkType = model.LinkTypeTimeProximity
	weak.Confidence = model.ConfidenceMedium
	if err := s.InsertLink(ctx, weak); err != nil {
		t.Fatalf("InsertLink() failed: %v", err)
	}

	stats, err := s.LinkStats(ctx, time.Hour)
	if err != nil {
		t.Fatalf("LinkStats() failed: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("expected 2 stat rows, got %d: %+v", len(stats), stats)
	}

	byType := make(map[model.LinkType]int)
	for _, st := range stats {
		byType[st.LinkType] = st.Count
	}
	if byType[model.LinkTypeBridgeTransfer] != 3 || byType[model.LinkTypeTimeProximity] != 1 {
		t.Fatalf("unexpected stat counts: %+v", byType)
	}
}

func TestCountLinksReferencing(t *testing.T) {
	ctx, s := setupStore(t)

	tx := newTestTransaction("shared")
	if _, err := s.InsertTransaction(ctx, tx); err != nil {
		t.Fatalf("seed insert failed: %v", err)
	}
	if err := s.MarkProcessed(ctx, []string{"shared"}, "link-owner"); err != nil {
		t.Fatalf("MarkProcessed() failed: %v", err)
	}
	if err := s.InsertLink(ctx, newTestLink("link-owner", []string{"shared", "other"})); err != nil {
		t.Fatalf("InsertLink() failed: %v", err)
	}

	count, err := s.CountLinksReferencing(ctx, "shared")
	if err != nil {
		t.Fatalf("CountLinksReferencing() failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one link referencing the leg, got %d", count)
	}

	// A second claim on the consumed leg must be refused before any link
	// row could reference it again.
	err = s.MarkProcessed(ctx, []string{"shared"}, "link-rival")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on second claim, got: %v", err)
	}
}

func TestAPIKeyLifecycle(t *testing.T) {
	ctx, s := setupStore(t)

	rec := &APIKeyRecord{
		ID:          "key-1",
		UserID:      "user-1",
		Role:        "analyst",
		SecretHash:  "$2a$10$abcdefghijklmnopqrstuv",
		Status:      "active",
		Permissions: []string{"links:read"},
	}
	if err := s.CreateAPIKey(ctx, rec); err != nil {
		t.Fatalf("CreateAPIKey() failed: %v", err)
	}

	got, err := s.GetAPIKey(ctx, "key-1")
	if err != nil {
		t.Fatalf("GetAPIKey() failed: %v", err)
	}
	if got.Role != "analyst" || got.Status != "active" {
		t.Fatalf("unexpected key record: %+v", got)
	}
	if len(got.Permissions) != 1 || got.Permissions[0] != "links:read" {
		t.Fatalf("permissions did not round trip: %v", got.Permissions)
	}

	if err := s.RevokeAPIKey(ctx, "key-1"); err != nil {
		t.Fatalf("RevokeAPIKey() failed: %v", err)
	}
	got, err = s.GetAPIKey(ctx, "key-1")
	if err != nil {
		t.Fatalf("GetAPIKey() after revoke failed: %v", err)
	}
	if got.Status != "revoked" || got.RevokedAt == nil {
		t.Fatalf("expected revoked key, got %+v", got)
	}

	if err := s.RevokeAPIKey(ctx, "missing"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got: %v", err)
	}
	if _, err := s.GetAPIKey(ctx, "missing"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got: %v", err)
	}
}
