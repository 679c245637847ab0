package elclient

import "testing"

func TestBlobBasefeeFloorsAtMinimum(t *testing.T) {
	got := BlobBasefee(0)
	if got.Uint64() != minBlobBaseFee {
		t.Fatalf("BlobBasefee(0) = %d, want %d", got.Uint64(), minBlobBaseFee)
	}
}

func TestBlobBasefeeIncreasesWithExcess(t *testing.T) {
	low := BlobBasefee(0)
	high := BlobBasefee(blobBaseFeeUpdateFraction * 4)
	if high.Cmp(low) <= 0 {
		t.Fatalf("expected blob basefee to grow with excess blob gas: low=%s high=%s", low, high)
	}
}
