package service

import (
	"errors"
	"testing"

	"github.com/edierwan/serapod2u-prod-sub000/internal/trace/entity"
)

func TestUniqueTransitions(t *testing.T) {
	s := &LedgerService{}

	legal := []struct {
		event   string
		current string
		want    string
	}{
		{EventScanUnique, entity.UniqueStatusGenerated, entity.UniqueStatusScanned},
		{EventLink, entity.UniqueStatusGenerated, entity.UniqueStatusLinked},
		{EventLink, entity.UniqueStatusScanned, entity.UniqueStatusLinked},
		{EventReceive, entity.UniqueStatusLinked, entity.UniqueStatusReceived},
		{EventShip, entity.UniqueStatusReceived, entity.UniqueStatusShipped},
		{EventValidate, entity.UniqueStatusShipped, entity.UniqueStatusValidated},
	}
	for _, tt := range legal {
		next, err := s.NextUniqueStatus("SU0TEST", tt.current, tt.event)
		if err != nil {
			t.Errorf("%s from %s: unexpected error %v", tt.event, tt.current, err)
			continue
		}
		if next != tt.want {
			t.Errorf("%s from %s = %s, want %s", tt.event, tt.current, next, tt.want)
		}
	}
}

func TestUniqueTransitionsRejectSkips(t *testing.T) {
	s := &LedgerService{}

	illegal := []struct {
		event   string
		current string
	}{
		{EventScanUnique, entity.UniqueStatusScanned},
		{EventScanUnique, entity.UniqueStatusLinked},
		{EventReceive, entity.UniqueStatusGenerated},
		{EventReceive, entity.UniqueStatusScanned},
		{EventShip, entity.UniqueStatusLinked},
		{EventShip, entity.UniqueStatusShipped},
		{EventValidate, entity.UniqueStatusReceived},
		{EventLink, entity.UniqueStatusLinked},
	}
	for _, tt := range illegal {
		_, err := s.NextUniqueStatus("SU0TEST", tt.current, tt.event)
		if err == nil {
			t.Errorf("%s from %s: expected rejection", tt.event, tt.current)
			continue
		}
		var transitionErr *TransitionError
		if !errors.As(err, &transitionErr) {
			t.Errorf("%s from %s: error %v is not a TransitionError", tt.event, tt.current, err)
			continue
		}
		if transitionErr.Current != tt.current || transitionErr.Attempted != tt.event {
			t.Errorf("TransitionError carries %s/%s, want %s/%s",
				transitionErr.Current, transitionErr.Attempted, tt.current, tt.event)
		}
	}
}

func TestMasterTransitions(t *testing.T) {
	s := &LedgerService{}

	if next, err := s.NextMasterStatus("SM0TEST", entity.MasterStatusGenerated, EventSeal); err != nil || next != entity.MasterStatusSealed {
		t.Errorf("seal from generated = %s, %v", next, err)
	}
	if next, err := s.NextMasterStatus("SM0TEST", entity.MasterStatusSealed, EventReceive); err != nil || next != entity.MasterStatusReceived {
		t.Errorf("receive from sealed = %s, %v", next, err)
	}
	if next, err := s.NextMasterStatus("SM0TEST", entity.MasterStatusReceived, EventShip); err != nil || next != entity.MasterStatusShipped {
		t.Errorf("ship from received = %s, %v", next, err)
	}

	// A never-sealed case cannot be received, and nothing moves backwards.
	if _, err := s.NextMasterStatus("SM0TEST", entity.MasterStatusGenerated, EventReceive); err == nil {
		t.Error("receive from generated: expected rejection")
	}
	if _, err := s.NextMasterStatus("SM0TEST", entity.MasterStatusShipped, EventReceive); err == nil {
		t.Error("receive from shipped: expected rejection")
	}
}

func TestResolveCodeType(t *testing.T) {
	if ct, err := ResolveCodeType("SU0123456789ABCD"); err != nil || ct != entity.CodeTypeUnique {
		t.Errorf("SU prefix = %s, %v", ct, err)
	}
	if ct, err := ResolveCodeType("SM0123456789"); err != nil || ct != entity.CodeTypeMaster {
		t.Errorf("SM prefix = %s, %v", ct, err)
	}
	if _, err := ResolveCodeType("XX0123456789"); err == nil {
		t.Error("unknown prefix: expected error")
	}
	if _, err := ResolveCodeType(""); err == nil {
		t.Error("empty code: expected error")
	}
}
