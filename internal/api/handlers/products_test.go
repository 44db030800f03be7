package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/core"
	"storefront/internal/types"
)

// fakeProductRepo implements ProductRepository in memory for handler tests.
type fakeProductRepo struct {
	products map[int64]*types.Product
	nextID   int64

	createErr error
	listErr   error
}

func newFakeProductRepo(products ...*types.Product) *fakeProductRepo {
	m := make(map[int64]*types.Product, len(products))
	var maxID int64
	for _, p := range products {
		m[p.ID] = p
		if p.ID > maxID {
			maxID = p.ID
		}
	}
	return &fakeProductRepo{products: m, nextID: maxID + 1}
}

func (f *fakeProductRepo) Create(ctx context.Context, p *types.Product) error {
	if f.createErr != nil {
		return f.createErr
	}
	p.ID = f.nextID
	f.nextID++
	f.products[p.ID] = p
	return nil
}

func (f *fakeProductRepo) GetByID(ctx context.Context, id int64) (*types.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundProduct, "product not found", nil)
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProductRepo) List(ctx context.Context) ([]*types.Product, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]*types.Product, 0, len(f.products))
	for _, p := range f.products {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeProductRepo) Update(ctx context.Context, p *types.Product) error {
	existing, ok := f.products[p.ID]
	if !ok {
		return types.NewAppError(types.ErrCodeNotFoundProduct, "product not found", nil)
	}
	// The sold column belongs to settlement; Update never touches it.
	sold := existing.Sold
	cp := *p
	cp.Sold = sold
	f.products[p.ID] = &cp
	return nil
}

func (f *fakeProductRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := f.products[id]; !ok {
		return types.NewAppError(types.ErrCodeNotFoundProduct, "product not found", nil)
	}
	delete(f.products, id)
	return nil
}

// passthroughAuth skips authentication for handler tests.
func passthroughAuth(next http.Handler) http.Handler {
	return next
}

func newProductRouter(repo *fakeProductRepo) *chi.Mux {
	handler := NewProductHandler(repo, core.NewValidator(nil), nil)
	r := chi.NewRouter()
	handler.RegisterRoutes(r, passthroughAuth)
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestProductCreate(t *testing.T) {
	repo := newFakeProductRepo()
	router := newProductRouter(repo)

	rr := doJSON(t, router, http.MethodPost, "/products/", map[string]any{
		"name":        "signed print",
		"description": "limited run",
		"price_cents": 12500,
	})

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created types.Product
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.NotZero(t, created.ID)
	assert.Equal(t, "signed print", created.Name)
	assert.Equal(t, int64(12500), created.PriceCents)
	assert.False(t, created.Sold)
}

func TestProductCreate_Validation(t *testing.T) {
	router := newProductRouter(newFakeProductRepo())

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing name", map[string]any{"price_cents": 100}},
		{"zero price", map[string]any{"name": "x", "price_cents": 0}},
		{"negative price", map[string]any{"name": "x", "price_cents": -5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doJSON(t, router, http.MethodPost, "/products/", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
		})
	}
}

func TestProductGet(t *testing.T) {
	repo := newFakeProductRepo(&types.Product{ID: 5, Name: "poster"})
	router := newProductRouter(repo)

	rr := doJSON(t, router, http.MethodGet, "/products/5", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, router, http.MethodGet, "/products/99", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = doJSON(t, router, http.MethodGet, "/products/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestProductUpdate_CannotTouchSold(t *testing.T) {
	repo := newFakeProductRepo(&types.Product{ID: 5, Name: "poster", PriceCents: 100, Sold: true})
	router := newProductRouter(repo)

	rr := doJSON(t, router, http.MethodPatch, "/products/5", map[string]any{
		"name":        "renamed poster",
		"price_cents": 200,
	})

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	stored := repo.products[5]
	assert.Equal(t, "renamed poster", stored.Name)
	assert.Equal(t, int64(200), stored.PriceCents)
	assert.True(t, stored.Sold, "update must not reset the sold flag")
}

func TestProductDelete(t *testing.T) {
	repo := newFakeProductRepo(&types.Product{ID: 5})
	router := newProductRouter(repo)

	rr := doJSON(t, router, http.MethodDelete, "/products/5", nil)
	require.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, repo.products)

	rr = doJSON(t, router, http.MethodDelete, "/products/5", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
