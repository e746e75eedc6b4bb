package model

import "testing"

func TestPaymentStatusLabel(t *testing.T) {
	cases := map[PaymentStatus]string{
		StatusPending:     "Pendiente",
		StatusPaid:        "Pagado",
		StatusRejected:    "Rechazado",
		StatusVoided:      "Anulado",
		StatusUnknown:     "Desconocido",
		PaymentStatus(17): "Desconocido",
		PaymentStatus(-1): "Desconocido",
	}
	for status, want := range cases {
		if got := status.Label(); got != want {
			t.Errorf("status %d: got %q want %q", status, got, want)
		}
	}
}

func TestOnlyStatusTwoIsPaid(t *testing.T) {
	for _, s := range []PaymentStatus{0, 1, 3, 4, 5, 99} {
		if s.Paid() {
			t.Fatalf("status %d must not count as paid", s)
		}
	}
	if !StatusPaid.Paid() {
		t.Fatalf("status 2 must count as paid")
	}
}

func TestReportRecount(t *testing.T) {
	r := &Report{Risks: []Risk{
		{Severity: SeverityLow},
		{Severity: SeverityCritical},
		{Severity: "Critico"},
		{Severity: SeverityHigh},
		{Severity: "otro"},
	}}
	r.Recount()
	want := RiskCount{Low: 1, High: 1, Critical: 2}
	if r.RiskCount != want {
		t.Fatalf("got %+v want %+v", r.RiskCount, want)
	}
}

func TestParseStatus(t *testing.T) {
	cases := map[string]PaymentStatus{
		"2":       StatusPaid,
		" 3 ":     StatusRejected,
		"4.0":     StatusVoided,
		"1e0":     StatusPending,
		"2.5":     StatusUnknown,
		"anulado": StatusUnknown,
		"":        StatusUnknown,
		"null":    StatusUnknown,
		"true":    StatusUnknown,
		"1e300":   StatusUnknown,
		"NaN":     StatusUnknown,
	}
	for raw, want := range cases {
		if got := ParseStatus(raw); got != want {
			t.Errorf("ParseStatus(%q): got %d want %d", raw, got, want)
		}
	}
}

func TestPaymentStatusUnmarshalNeverFails(t *testing.T) {
	for _, raw := range []string{`2`, `"2"`, `2.0`, `"x"`, `{}`, `[1]`, `null`} {
		var s PaymentStatus
		if err := s.UnmarshalJSON([]byte(raw)); err != nil {
			t.Fatalf("%s: unexpected error %v", raw, err)
		}
	}
}
