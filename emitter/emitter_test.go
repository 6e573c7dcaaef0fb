package emitter

import (
	"encoding/json"
	"testing"
)

type fakeConn struct {
	sent [][]byte
}

func (f *fakeConn) Send(frame []byte) error {
	f.sent = append(f.sent, frame)
	return nil
}

func (f *fakeConn) RemoteAddr() string { return "127.0.0.1" }

func TestEmitWritesExpectedFrame(t *testing.T) {
	conn := &fakeConn{}
	if err := Emit(conn, "deadbeef", false, "rejected: content is longer than 200 bytes"); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(conn.sent) != 1 {
		t.Fatalf("expected exactly one frame sent, got %d", len(conn.sent))
	}
	var decoded []interface{}
	if err := json.Unmarshal(conn.sent[0], &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded[0] != "OK" || decoded[1] != "deadbeef" || decoded[2] != false {
		t.Fatalf("unexpected frame: %v", decoded)
	}
}

func TestEmitSuccessHasEmptyReason(t *testing.T) {
	conn := &fakeConn{}
	if err := Emit(conn, "deadbeef", true, ""); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	var decoded []interface{}
	json.Unmarshal(conn.sent[0], &decoded)
	if decoded[3] != "" {
		t.Fatalf("expected empty reason, got %v", decoded[3])
	}
}
