package product_test

import (
	"context"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketmitra/stockly/internal/product"
)

type mockRepository struct {
	createFunc  func(ctx context.Context, p *product.Product) error
	getByIDFunc func(ctx context.Context, id uuid.UUID) (*product.Product, error)
	listFunc    func(ctx context.Context, category string) ([]product.Product, error)
	updateFunc  func(ctx context.Context, p *product.Product) error
	deleteFunc  func(ctx context.Context, id uuid.UUID) error
}

func (m *mockRepository) Create(ctx context.Context, p *product.Product) error {
	return m.createFunc(ctx, p)
}

func (m *mockRepository) GetByID(ctx context.Context, id uuid.UUID) (*product.Product, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockRepository) List(ctx context.Context, category string) ([]product.Product, error) {
	return m.listFunc(ctx, category)
}

func (m *mockRepository) Update(ctx context.Context, p *product.Product) error {
	return m.updateFunc(ctx, p)
}

func (m *mockRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return m.deleteFunc(ctx, id)
}

func (m *mockRepository) DecrementStock(ctx context.Context, q product.Querier, id uuid.UUID, qty int) error {
	return nil
}

func TestService_CreateProduct(t *testing.T) {
	tests := []struct {
		name    string
		input   *product.Product
		wantErr string
	}{
		{
			name:    "missing_name",
			input:   &product.Product{Price: 10, Stock: 5},
			wantErr: "name is required",
		},
		{
			name:    "negative_price",
			input:   &product.Product{Name: "Seeds", Price: -1, Stock: 5},
			wantErr: "price cannot be negative",
		},
		{
			name:    "negative_stock",
			input:   &product.Product{Name: "Seeds", Price: 10, Stock: -5},
			wantErr: "stock cannot be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := product.NewService(&mockRepository{})

			_, err := svc.CreateProduct(context.Background(), tt.input)

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("success", func(t *testing.T) {
		created := false
		repo := &mockRepository{
			createFunc: func(ctx context.Context, p *product.Product) error {
				created = true
				return nil
			},
		}
		svc := product.NewService(repo)

		p, err := svc.CreateProduct(context.Background(), &product.Product{
			Name: "Organic Fertilizer", Price: 100, Stock: 5, Category: "farming",
		})

		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, "Organic Fertilizer", p.Name)
	})
}

func TestService_GetProductByID_NotFound(t *testing.T) {
	repo := &mockRepository{
		getByIDFunc: func(ctx context.Context, id uuid.UUID) (*product.Product, error) {
			return nil, product.ErrProductNotFound
		},
	}
	svc := product.NewService(repo)

	_, err := svc.GetProductByID(context.Background(), uuid.Must(uuid.NewV4()))
	assert.ErrorIs(t, err, product.ErrProductNotFound)
}

func TestService_ListProducts_PassesCategory(t *testing.T) {
	var gotCategory string
	repo := &mockRepository{
		listFunc: func(ctx context.Context, category string) ([]product.Product, error) {
			gotCategory = category
			return []product.Product{{Name: "Seeds"}}, nil
		},
	}
	svc := product.NewService(repo)

	products, err := svc.ListProducts(context.Background(), "farming")

	require.NoError(t, err)
	assert.Equal(t, "farming", gotCategory)
	assert.Len(t, products, 1)
}
