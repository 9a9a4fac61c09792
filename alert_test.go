package callwatch

import (
	"errors"
	"strings"
	"testing"
)

func sampleCall() CallRecord {
	return CallRecord{
		CallID:      "externalCall.abc123",
		CallStart:   "2026-08-25T10:15:00+03:00",
		Duration:    95,
		PhoneNumber: "+380441234567",
	}
}

func TestBuildAlertCardCompliant(t *testing.T) {
	eval := Evaluation{Fragment: "Доброго дня!", FragmentLimit: 500, Compliant: true}
	msg := BuildAlertCard(sampleCall(), "Олена Ковальчук", "https://acme.bitrix24.ua/crm/contact/details/42/", eval)

	header := strings.SplitN(msg, "\n", 2)[0]
	if header != "BOTR: 📞 Олена Ковальчук | +380441234567 | ⏱95s | ⚠️Відхилення: Ні" {
		t.Fatalf("header: %q", header)
	}
	if !strings.Contains(msg, "<b>Новий дзвінок</b>") {
		t.Fatal("missing card title")
	}
	if !strings.Contains(msg, "<code>externalCall.abc123</code>") {
		t.Fatal("missing call id")
	}
	if !strings.Contains(msg, "<a href='https://acme.bitrix24.ua/crm/contact/details/42/'>відкрити</a>") {
		t.Fatal("missing CRM link")
	}
	if !strings.Contains(msg, "Аналіз (фрагмент 500)") {
		t.Fatal("missing fragment label")
	}
}

func TestBuildAlertCardDeviationFlag(t *testing.T) {
	eval := Evaluation{
		Fragment:      "Алло.",
		FragmentLimit: 500,
		Compliant:     false,
		Deviations:    []string{"відсутнє привітання"},
	}
	msg := BuildAlertCard(sampleCall(), "—", "https://acme.bitrix24.ua/", eval)

	// The header flag is the inverse of compliance.
	if !strings.Contains(msg, "⚠️Відхилення: Так") {
		t.Fatal("expected deviation flag Так")
	}
	if !strings.Contains(msg, "• відсутнє привітання") {
		t.Fatal("expected deviation list entry")
	}
}

func TestBuildAlertCardEscapesHTML(t *testing.T) {
	eval := Evaluation{Fragment: "a <b> & c", FragmentLimit: 500, Compliant: true}
	msg := BuildAlertCard(sampleCall(), "<script>", "https://x/", eval)

	if strings.Contains(msg, "<script>") {
		t.Fatal("name not escaped")
	}
	if !strings.Contains(msg, "&lt;script&gt;") {
		t.Fatal("expected escaped name")
	}
	if !strings.Contains(msg, "a &lt;b&gt; &amp; c") {
		t.Fatal("expected escaped fragment")
	}
}

func TestBuildAlertCardEmptyPhone(t *testing.T) {
	call := sampleCall()
	call.PhoneNumber = ""
	msg := BuildAlertCard(call, "Ім'я", "https://x/", Evaluation{FragmentLimit: 500, Compliant: true})
	if !strings.Contains(msg, "| — |") {
		t.Fatal("expected phone placeholder in header")
	}
}

func TestBuildErrorCard(t *testing.T) {
	msg := BuildErrorCard("CALL9", errors.New("transcribe failed: status 500"))
	if !strings.Contains(msg, "🚨 Помилка обробки CALL_ID <code>CALL9</code>") {
		t.Fatalf("error card: %q", msg)
	}
	if !strings.Contains(msg, "transcribe failed") {
		t.Fatal("missing error text")
	}
}

func TestBuildErrorCardTruncates(t *testing.T) {
	long := errors.New(strings.Repeat("п", maxErrorCardChars+100))
	msg := BuildErrorCard("C", long)
	if got := len([]rune(msg)); got > maxErrorCardChars+200 {
		t.Fatalf("error card too long: %d runes", got)
	}
}
