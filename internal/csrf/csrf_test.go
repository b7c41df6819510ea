package csrf

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"

	"github.com/senocak/authcore/internal/cache"
	"github.com/senocak/authcore/internal/testutil"
)

func TestLoadResolvesStoredToken(t *testing.T) {
	db, mock := redismock.NewClientMock()
	repo := NewRepository(cache.NewRedisStore(db), time.Minute)

	stored, _ := json.Marshal(Token{HeaderName: HeaderName, ParameterName: ParameterName, Token: "01HZX"})
	mock.ExpectGet("csrf:01HZX").SetVal(string(stored))
	mock.ExpectGet("csrf:gone").RedisNil()

	got, err := repo.Load(context.Background(), "01HZX")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.HeaderName != "X-XSRF-TOKEN" || got.ParameterName != "_csrf" || got.Token != "01HZX" {
		t.Fatalf("unexpected token: %+v", got)
	}
	if _, err := repo.Load(context.Background(), "gone"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if _, err := repo.Load(context.Background(), "  "); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSaveWritesWithTTL(t *testing.T) {
	db, mock := redismock.NewClientMock()
	repo := NewRepository(cache.NewRedisStore(db), 0)

	tok := Token{HeaderName: HeaderName, ParameterName: ParameterName, Token: "abc"}
	raw, _ := json.Marshal(tok)
	mock.ExpectSet("csrf:abc", string(raw), DefaultTTL).SetVal("OK")
	mock.ExpectDel("csrf:abc").SetVal(1)

	if err := repo.Save(context.Background(), tok); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := repo.Delete(context.Background(), "abc"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGenerateIssuesULID(t *testing.T) {
	mem := testutil.NewMemoryCache()
	repo := NewRepository(mem, time.Minute)

	tok, err := repo.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(tok.Token) != 26 || tok.HeaderName != HeaderName {
		t.Fatalf("unexpected token: %+v", tok)
	}
	if mem.TTLs["csrf:"+tok.Token] != time.Minute {
		t.Fatalf("token not stored with ttl: %v", mem.TTLs)
	}
	if _, err := repo.Load(context.Background(), tok.Token); err != nil {
		t.Fatalf("generated token does not load: %v", err)
	}
}

func TestRequire(t *testing.T) {
	db, mock := redismock.NewClientMock()
	repo := NewRepository(cache.NewRedisStore(db), time.Minute)
	stored, _ := json.Marshal(Token{Token: "good"})
	mock.ExpectGet("csrf:good").SetVal(string(stored))
	mock.ExpectGet("csrf:bad").RedisNil()

	var rejected error
	h := Require(repo, func(w http.ResponseWriter, r *http.Request, err error) {
		rejected = err
		w.WriteHeader(http.StatusForbidden)
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		method, token string
		want          int
	}{
		{http.MethodGet, "", http.StatusNoContent},
		{http.MethodPatch, "good", http.StatusNoContent},
		{http.MethodPatch, "bad", http.StatusForbidden},
		{http.MethodPost, "", http.StatusForbidden},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, "/api/v1/user/me", nil)
		if tc.token != "" {
			req.Header.Set(HeaderName, tc.token)
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != tc.want {
			t.Fatalf("%s token=%q: expected %d, got %d", tc.method, tc.token, tc.want, rr.Code)
		}
	}
	if !errors.Is(rejected, ErrMissingToken) {
		t.Fatalf("last rejection should be a missing token, got %v", rejected)
	}
}
