package webhooks

import "testing"

func TestSignHMACKnownVector(t *testing.T) {
	// RFC 4231 test case 2.
	got := SignHMAC("Jefe", []byte("what do ya want for nothing?"))
	want := "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843"
	if got != want {
		t.Fatalf("got %s want %s", got, want)
	}
}

func TestVerifyHMAC(t *testing.T) {
	body := []byte(`{"event":"order.created"}`)
	sig := SignHMAC("secret", body)
	if !VerifyHMAC("secret", body, sig) {
		t.Fatal("own signature rejected")
	}
	if VerifyHMAC("other", body, sig) {
		t.Fatal("wrong secret accepted")
	}
	if VerifyHMAC("secret", []byte(`{"event":"order.updated"}`), sig) {
		t.Fatal("altered body accepted")
	}
	for _, bad := range []string{"", "zz", sig[:10]} {
		if VerifyHMAC("secret", body, bad) {
			t.Fatalf("malformed signature %q accepted", bad)
		}
	}
	if SignHMAC("secret", nil) == "" {
		t.Fatal("empty body should still be signed")
	}
}
