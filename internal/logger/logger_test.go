package logger

import "testing"

func TestNew(t *testing.T) {
	for _, env := range []string{"production", "development", ""} {
		l, err := New(env)
		if err != nil {
			t.Fatalf("env %q: %v", env, err)
		}
		l.Sugar().Infof("logger ready for %q", env)
		Sync(l)
	}
}
