package ztproto

import "testing"

func TestApplyEndpointEventTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		state     EndpointState
		event     EndpointEvent
		wantState EndpointState
		wantAction EndpointAction
		wantChanged bool
	}{
		{"fresh bind", EndpointFresh, EndpointEventBind, EndpointBound, EndpointActionJoinNetwork, true},
		{"bound listen", EndpointBound, EndpointEventListen, EndpointListening, 0, true},
		{"bound connect", EndpointBound, EndpointEventConnect, EndpointConnecting, EndpointActionArmRetryTimer, true},
		{"connecting connected", EndpointConnecting, EndpointEventConnected, EndpointBound, EndpointActionReleaseLocalAddr, true},
		{"connecting exhausted", EndpointConnecting, EndpointEventRetryExhausted, EndpointBound, EndpointActionFailPendingTimedOut, true},
		{"listening close", EndpointListening, EndpointEventClose, EndpointDead, EndpointActionCancelPending, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := ApplyEndpointEvent(tt.state, tt.event)
			if got.NewState != tt.wantState {
				t.Fatalf("NewState = %v, want %v", got.NewState, tt.wantState)
			}
			if got.Changed != tt.wantChanged {
				t.Fatalf("Changed = %v, want %v", got.Changed, tt.wantChanged)
			}
			if tt.wantAction != 0 {
				found := false
				for _, a := range got.Actions {
					if a == tt.wantAction {
						found = true
					}
				}
				if !found {
					t.Fatalf("Actions = %v, want to contain %v", got.Actions, tt.wantAction)
				}
			}
		})
	}
}

func TestApplyEndpointEventIgnoresUnknownPair(t *testing.T) {
	t.Parallel()

	got := ApplyEndpointEvent(EndpointDead, EndpointEventConnect)
	if got.Changed {
		t.Fatalf("expected no transition out of dead state, got %v", got.NewState)
	}
	if len(got.Actions) != 0 {
		t.Fatalf("expected no actions, got %v", got.Actions)
	}
}

func TestEndpointStateStringCoversAllValues(t *testing.T) {
	t.Parallel()

	states := []EndpointState{EndpointFresh, EndpointBound, EndpointConnecting, EndpointListening, EndpointDead}
	for _, s := range states {
		if s.String() == "unknown" {
			t.Fatalf("state %d missing a String() case", s)
		}
	}
}
