package scanui

import (
	"testing"

	"go.uber.org/zap"
)

func TestApply_NamedSequence(t *testing.T) {
	s := NewState()
	s = Apply(s, OpIdle, nil)
	s = Apply(s, OpScanning, nil)
	s = Apply(s, OpSuccess, &Feedback{Message: "OK"})

	if s.Phase != PhaseSuccess {
		t.Errorf("expected phase success, got %s", s.Phase)
	}
	if s.CustomMessage != "OK" {
		t.Errorf("expected custom message OK, got %q", s.CustomMessage)
	}
}

func TestApply_UnknownOpIsNoOp(t *testing.T) {
	s := Apply(NewState(), OpSuccess, &Feedback{Message: "hola", StatusCode: "200"})

	got := Apply(s, Op("explode"), nil)
	if got != s {
		t.Error("unknown op must return the input state unchanged")
	}
}

func TestApply_TransientFieldsCleared(t *testing.T) {
	tests := []struct {
		name string
		op   Op
		want Phase
	}{
		{"ready clears fields", OpReady, PhaseReady},
		{"idle clears fields", OpIdle, PhaseIdle},
		{"scanning clears fields", OpScanning, PhaseScanning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			failed := Apply(NewState(), OpFailed, &Feedback{
				Message:    "tarjeta no reconocida",
				StatusCode: "403",
				StatusData: map[string]interface{}{"intento": 1},
			})

			s := Apply(failed, tt.op, nil)
			if s.Phase != tt.want {
				t.Errorf("expected phase %s, got %s", tt.want, s.Phase)
			}
			if s.CustomMessage != "" || s.StatusCode != "" || s.StatusData != nil {
				t.Errorf("transient fields not cleared: %+v", s)
			}
		})
	}
}

func TestApply_FailedCarriesStatus(t *testing.T) {
	s := Apply(NewState(), OpFailed, &Feedback{StatusCode: "403"})
	if s.Phase != PhaseFailed {
		t.Errorf("expected phase failed, got %s", s.Phase)
	}
	if s.StatusCode != "403" {
		t.Errorf("expected status code 403, got %q", s.StatusCode)
	}
}

func TestMachine_Transitions(t *testing.T) {
	m := NewMachine(zap.NewNop())

	if m.Current().Phase != PhaseIdle {
		t.Fatalf("expected initial idle, got %s", m.Current().Phase)
	}

	m.SetReady()
	m.SetScanning()
	m.SetSuccess(Feedback{Message: "bienvenido", StatusCode: "200"})

	s := m.Current()
	if s.Phase != PhaseSuccess || s.CustomMessage != "bienvenido" {
		t.Errorf("unexpected state after success: %+v", s)
	}

	m.Reset()
	if m.Current().Phase != PhaseIdle {
		t.Errorf("expected idle after reset, got %s", m.Current().Phase)
	}
}
