package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"storefront/internal/auth"
	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CatalogService serves the product catalog and its admin maintenance
type CatalogService struct {
	store  *store.Store
	logger *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(store *store.Store) *CatalogService {
	return &CatalogService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// ProductQuery carries the raw catalog listing parameters
type ProductQuery struct {
	Brand    string `form:"brand"`
	MinPrice string `form:"minPrice"`
	MaxPrice string `form:"maxPrice"`
	Search   string `form:"search"`
	Featured string `form:"featured"`
	Sort     string `form:"sort"`
	Order    string `form:"order"`
}

// ProductInput is the editable part of a product
type ProductInput struct {
	Name        string          `json:"name" validate:"min=3"`
	Brand       string          `json:"brand" validate:"min=2"`
	Description string          `json:"description" validate:"min=10"`
	Price       decimal.Decimal `json:"price" validate:"-"`
	Stock       int             `json:"stock" validate:"gte=0,lte=2147483647"`
	Images      []string        `json:"images" validate:"min=1,dive,required,url"`
	Processor   string          `json:"processor" validate:"required"`
	RAM         string          `json:"ram" validate:"required"`
	Storage     string          `json:"storage" validate:"required"`
	Display     string          `json:"display" validate:"required"`
	GPU         string          `json:"gpu"`
	Battery     string          `json:"battery"`
	Weight      *float64        `json:"weight" validate:"omitempty,gt=0"`
	OS          string          `json:"os" validate:"required"`
	Featured    bool            `json:"featured"`
}

func (in *ProductInput) normalize() {
	for _, f := range []*string{&in.Name, &in.Brand, &in.Description, &in.Processor, &in.RAM,
		&in.Storage, &in.Display, &in.GPU, &in.Battery, &in.OS} {
		*f = strings.TrimSpace(*f)
	}
	for i := range in.Images {
		in.Images[i] = strings.TrimSpace(in.Images[i])
	}
}

func (in *ProductInput) validate() error {
	verr := validateStruct(in)
	if verr == nil {
		verr = &ValidationError{}
	}
	if problem := amountProblem(in.Price); problem != "" {
		verr.add("price", problem)
	}
	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

func (in *ProductInput) apply(p *models.Product) {
	p.Name = in.Name
	p.Brand = in.Brand
	p.Description = in.Description
	p.Price = in.Price
	p.Stock = in.Stock
	p.Images = models.StringList(in.Images)
	p.Processor = in.Processor
	p.RAM = in.RAM
	p.Storage = in.Storage
	p.Display = in.Display
	p.GPU = in.GPU
	p.Battery = in.Battery
	p.Weight = in.Weight
	p.OS = in.OS
	p.Featured = in.Featured
}

// ListProducts returns the catalog filtered and sorted per q. Sorting
// defaults to newest first.
func (s *CatalogService) ListProducts(ctx context.Context, q ProductQuery) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListProducts")
	defer span.End()

	filter := store.ProductFilter{
		Brand:    strings.TrimSpace(q.Brand),
		Search:   strings.TrimSpace(q.Search),
		Featured: q.Featured == "true",
		SortBy:   q.Sort,
		Desc:     !strings.EqualFold(q.Order, "asc"),
	}
	if filter.SortBy == "" {
		filter.SortBy = "createdAt"
	}

	verr := &ValidationError{}
	if q.MinPrice != "" {
		v, err := decimal.NewFromString(q.MinPrice)
		if err != nil {
			verr.add("minPrice", "must be a number")
		} else {
			filter.MinPrice = &v
		}
	}
	if q.MaxPrice != "" {
		v, err := decimal.NewFromString(q.MaxPrice)
		if err != nil {
			verr.add("maxPrice", "must be a number")
		} else {
			filter.MaxPrice = &v
		}
	}
	if len(verr.Fields) > 0 {
		return nil, verr
	}

	products, err := s.store.ListProducts(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

// GetProduct returns one product
func (s *CatalogService) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	product, err := s.store.GetProductByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load product: %w", err)
	}
	return product, nil
}

// CreateProduct adds a product to the catalog
func (s *CatalogService) CreateProduct(ctx context.Context, identity *auth.Identity, in *ProductInput) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.CreateProduct")
	defer span.End()

	if err := requireAdmin(identity); err != nil {
		return nil, err
	}

	in.normalize()
	if err := in.validate(); err != nil {
		return nil, err
	}

	product := &models.Product{ID: uuid.NewString()}
	in.apply(product)

	if err := s.store.CreateProduct(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	s.logger.Info("Product created",
		zap.String("product_id", product.ID),
		zap.String("name", product.Name))
	return product, nil
}

// UpdateProduct overwrites the editable fields of a product
func (s *CatalogService) UpdateProduct(ctx context.Context, identity *auth.Identity, id string, in *ProductInput) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.UpdateProduct")
	defer span.End()

	if err := requireAdmin(identity); err != nil {
		return nil, err
	}

	in.normalize()
	if err := in.validate(); err != nil {
		return nil, err
	}

	product, err := s.store.GetProductByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load product: %w", err)
	}

	in.apply(product)
	switch err := s.store.UpdateProduct(ctx, product); {
	case errors.Is(err, store.ErrNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to update product: %w", err)
	}

	s.logger.Info("Product updated", zap.String("product_id", product.ID))
	return product, nil
}

// DeleteProduct removes a product. Products referenced by orders are kept.
func (s *CatalogService) DeleteProduct(ctx context.Context, identity *auth.Identity, id string) error {
	ctx, span := util.StartSpan(ctx, "CatalogService.DeleteProduct")
	defer span.End()

	if err := requireAdmin(identity); err != nil {
		return err
	}

	switch err := s.store.DeleteProduct(ctx, id); {
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrProductInUse):
		return fmt.Errorf("%w: product is referenced by existing orders", ErrConflict)
	case err != nil:
		return fmt.Errorf("failed to delete product: %w", err)
	}

	s.logger.Info("Product deleted", zap.String("product_id", id))
	return nil
}
