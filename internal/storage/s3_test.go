package storage

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"
)

func TestS3ObjectKey(t *testing.T) {
	cases := []struct {
		prefix, key, want string
	}{
		{prefix: "", key: "sid001401_timbre_res_part", want: "sid001401_timbre_res_part.json.zst"},
		{prefix: "/runs/", key: "sid001401_timbre_res_part", want: "runs/sid001401_timbre_res_part.json.zst"},
		{prefix: "runs", key: "", want: "runs/"},
	}
	for _, tc := range cases {
		s := NewS3Store(S3Options{Bucket: "b", Prefix: tc.prefix})
		if got := s.objectKey(tc.key); got != tc.want {
			t.Fatalf("objectKey(%q) with prefix %q = %q, want %q", tc.key, tc.prefix, got, tc.want)
		}
	}
}

func TestS3StoreRequiresBucket(t *testing.T) {
	if err := NewS3Store(S3Options{}).Init(context.Background()); err == nil {
		t.Fatal("expected an error without a bucket")
	}
}

func TestS3StoreContract(t *testing.T) {
	bucket := os.Getenv("AUDIMG_TEST_S3_BUCKET")
	if bucket == "" {
		t.Skip("AUDIMG_TEST_S3_BUCKET not set")
	}
	exerciseStore(t, NewS3Store(S3Options{
		Bucket:    bucket,
		Prefix:    fmt.Sprintf("audimg-test-%d", time.Now().UnixNano()),
		Region:    os.Getenv("AUDIMG_TEST_S3_REGION"),
		Endpoint:  os.Getenv("AUDIMG_TEST_S3_ENDPOINT"),
		PathStyle: os.Getenv("AUDIMG_TEST_S3_ENDPOINT") != "",
	}))
}
