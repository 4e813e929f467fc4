package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func TestVerifyRazorpaySignature(t *testing.T) {
	const secret = "key_secret"
	const orderID = "order_MkD2vXa"
	const paymentID = "pay_NkE9wYb"

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	valid := hex.EncodeToString(mac.Sum(nil))

	if !VerifyRazorpaySignature(orderID, paymentID, valid, secret) {
		t.Error("valid signature rejected")
	}
	if VerifyRazorpaySignature(orderID, paymentID, valid, "other_secret") {
		t.Error("signature accepted under wrong secret")
	}
	if VerifyRazorpaySignature(orderID, "pay_other", valid, secret) {
		t.Error("signature accepted for different payment id")
	}
	if VerifyRazorpaySignature(orderID, paymentID, "", secret) {
		t.Error("empty signature accepted")
	}
	if VerifyRazorpaySignature(orderID, paymentID, valid[:len(valid)-2]+"00", secret) {
		t.Error("tampered signature accepted")
	}
}
