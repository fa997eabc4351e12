package buffer

import (
	"context"
	"testing"
)

func TestBufferAppendAndBytes(t *testing.T) {
	p, err := NewPool(1, 16)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	b, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	if b.Capacity() != 16 {
		t.Errorf("Capacity() = %d, want 16", b.Capacity())
	}
	if b.Remaining() != 16 {
		t.Errorf("Remaining() = %d, want 16", b.Remaining())
	}

	b.Append([]byte("hello\n"))
	if b.Remaining() != 10 {
		t.Errorf("Remaining() after append = %d, want 10", b.Remaining())
	}
	if string(b.Bytes()) != "hello\n" {
		t.Errorf("Bytes() = %q, want %q", b.Bytes(), "hello\n")
	}
}

func TestBufferResetClearsStateForReuse(t *testing.T) {
	p, _ := NewPool(1, 16)
	b, _ := p.Acquire(context.Background())
	b.Append([]byte("abc"))
	b.Range.First, b.Range.Last = 3, 3

	b.Reset()

	if b.Remaining() != b.Capacity() {
		t.Errorf("Remaining() after Reset = %d, want %d", b.Remaining(), b.Capacity())
	}
	if len(b.Bytes()) != 0 {
		t.Errorf("Bytes() after Reset = %q, want empty", b.Bytes())
	}
	if b.Range.First != 0 || b.Range.Last != 0 {
		t.Errorf("Range after Reset = %v, want zero value", b.Range)
	}
}
