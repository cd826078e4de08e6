package razorpay

import (
	"testing"
)

func TestVerifyPaymentSignatureRoundTrip(t *testing.T) {
	secret := "test_key_secret"
	orderID := "order_MkWq3rLkqPZbnN"
	paymentID := "pay_MkWrEXwx0PZbnO"

	sig := ComputeSignature(secret, orderID+"|"+paymentID)
	if !VerifyPaymentSignature(orderID, paymentID, sig, secret) {
		t.Fatalf("expected computed signature to verify")
	}
}

func TestVerifyPaymentSignatureRejectsTampering(t *testing.T) {
	secret := "test_key_secret"
	orderID := "order_MkWq3rLkqPZbnN"
	paymentID := "pay_MkWrEXwx0PZbnO"
	sig := ComputeSignature(secret, orderID+"|"+paymentID)

	// Flip one hex character.
	flipped := []byte(sig)
	if flipped[0] == 'a' {
		flipped[0] = 'b'
	} else {
		flipped[0] = 'a'
	}
	if VerifyPaymentSignature(orderID, paymentID, string(flipped), secret) {
		t.Fatalf("tampered signature must not verify")
	}
}

func TestVerifyPaymentSignatureMissingInputs(t *testing.T) {
	sig := ComputeSignature("s", "o|p")
	cases := []struct {
		name                                  string
		orderID, paymentID, signature, secret string
	}{
		{"missing secret", "o", "p", sig, ""},
		{"missing signature", "o", "p", "", "s"},
		{"missing order id", "", "p", sig, "s"},
		{"missing payment id", "o", "", sig, "s"},
	}
	for _, tc := range cases {
		if VerifyPaymentSignature(tc.orderID, tc.paymentID, tc.signature, tc.secret) {
			t.Fatalf("%s: expected rejection", tc.name)
		}
	}
}

func TestVerifyWebhookSignature(t *testing.T) {
	secret := "whsec_shopveda"
	payload := []byte(`{"event":"payment.captured","payload":{}}`)

	sig := ComputeSignature(secret, string(payload))
	if !VerifyWebhookSignature(payload, sig, secret) {
		t.Fatalf("expected valid webhook signature to verify")
	}
	if VerifyWebhookSignature(payload, "wrong", secret) {
		t.Fatalf("wrong signature must not verify")
	}
	if VerifyWebhookSignature(payload, sig, "") {
		t.Fatalf("missing secret must not verify")
	}
}

func TestVerifyWebhookSignatureUsesRawBytes(t *testing.T) {
	secret := "whsec_shopveda"
	// Whitespace matters: a re-serialized payload would normalize it away.
	payload := []byte("{\n  \"event\": \"payment.captured\"\n}")
	sig := ComputeSignature(secret, string(payload))

	if !VerifyWebhookSignature(payload, sig, secret) {
		t.Fatalf("raw payload must verify byte-for-byte")
	}
	if VerifyWebhookSignature([]byte(`{"event":"payment.captured"}`), sig, secret) {
		t.Fatalf("re-encoded payload must fail verification")
	}
}
