package pglue

import "testing"

func TestNewConnConfigDefaults(t *testing.T) {
	cfg := NewConnConfig("localhost", "5432")
	if cfg.opt.Host != "localhost" || cfg.opt.Port != "5432" {
		t.Fatalf("host/port = %q/%q", cfg.opt.Host, cfg.opt.Port)
	}
	if cfg.opt.RuntimeParams == nil {
		t.Fatalf("RuntimeParams must default to a non-nil map")
	}
	if cfg.codecs == nil {
		t.Fatalf("codecs must default to a non-nil registry")
	}
}

func TestConnOptionsApplyInOrder(t *testing.T) {
	cfg := NewConnConfig("localhost", "5432",
		WithUser("alice"),
		WithPassword("secret"),
		WithDatabase("app"),
		WithRuntimeParam("application_name", "pglue-test"),
	)
	if cfg.opt.User != "alice" || cfg.opt.Password != "secret" || cfg.opt.Database != "app" {
		t.Fatalf("opt = %+v", cfg.opt)
	}
	if cfg.opt.RuntimeParams["application_name"] != "pglue-test" {
		t.Fatalf("RuntimeParams = %v", cfg.opt.RuntimeParams)
	}
}
