package commitment

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/interstate-labs/preconf-gateway/beaconclient"
	"github.com/interstate-labs/preconf-gateway/ethtypes"
)

func fakeSignedConstraints() ethtypes.SignedConstraints {
	return ethtypes.SignedConstraints{}
}

func newStubBeacon(t *testing.T) *beaconclient.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/eth/v1/beacon/headers"):
			fmt.Fprint(w, `{"data":{"root":"0x01","header":{"message":{"slot":"100","state_root":"0x02","parent_root":"0x00","body_root":"0x00","proposer_index":"1"}}}}`)
		case r.URL.Path == "/eth/v1/validator/duties/proposer/3":
			fmt.Fprintf(w, `{"data":[{"pubkey":"0x%096x","slot":"101"}]}`, 1)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return beaconclient.New(srv.URL)
}

func TestUpdateHeadAdvancesSlotAndArmsDeadline(t *testing.T) {
	s := New(newStubBeacon(t), 50*time.Millisecond)
	if err := s.UpdateHead(context.Background(), 100); err != nil {
		t.Fatalf("UpdateHead: %v", err)
	}
	if s.LatestSlot() != 100 {
		t.Fatalf("LatestSlot = %d, want 100", s.LatestSlot())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	slot, ok := s.WaitDeadline(ctx)
	if !ok || slot != 101 {
		t.Fatalf("WaitDeadline = %d, %v; want 101, true", slot, ok)
	}

	pk, err := s.ProposerPubkeyForSlot(101)
	if err != nil {
		t.Fatalf("ProposerPubkeyForSlot: %v", err)
	}
	if pk[47] != 1 {
		t.Fatalf("unexpected proposer pubkey: %x", pk)
	}
}

func TestValidateRequestWindowRejectsPastSlot(t *testing.T) {
	s := New(newStubBeacon(t), time.Second)
	if err := s.UpdateHead(context.Background(), 100); err != nil {
		t.Fatalf("UpdateHead: %v", err)
	}
	if err := s.ValidateRequestWindow(100); err == nil {
		t.Fatal("expected error for a slot that has already passed")
	}
	if err := s.ValidateRequestWindow(101); err != nil {
		t.Fatalf("expected slot 101 to be valid, got %v", err)
	}
}

func TestRemoveConstraintsAtSlot(t *testing.T) {
	s := New(newStubBeacon(t), time.Second)
	addr := common.HexToAddress("0x0303030303030303030303030303030303030303")
	s.AddConstraint(55, fakeSignedConstraints(), nil, map[common.Address]uint64{addr: 0})

	if got := s.CommittedCount(55); got != 1 {
		t.Fatalf("CommittedCount = %d, want 1", got)
	}
	b := s.RemoveConstraintsAtSlot(55)
	if b == nil || b.Slot != 55 {
		t.Fatalf("unexpected block: %+v", b)
	}
	if s.RemoveConstraintsAtSlot(55) != nil {
		t.Fatal("expected second take to return nil")
	}
}
