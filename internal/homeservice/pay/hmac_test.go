package pay

import "testing"

func TestVerifyHMAC(t *testing.T) {
	body := []byte(`{"event":"payment.captured"}`)
	secret := "whsec"
	signature := "4673dd707ef4c41b987cb7fefe1583142dc702388c93145b7814b9ad3d3c183e"
	if !VerifyHMAC(body, signature, secret) {
		t.Fatal("expected signature to be valid")
	}
	if VerifyHMAC(body, "deadbeef", secret) {
		t.Fatal("unexpected valid signature")
	}
	if VerifyHMAC(body, "zz", secret) {
		t.Fatal("non-hex signature accepted")
	}
	if VerifyHMAC(body, signature, "") {
		t.Fatal("empty secret accepted")
	}
	if got := Sign(body, secret); got != signature {
		t.Fatalf("expected %s got %s", signature, got)
	}
}
