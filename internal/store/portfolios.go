package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/stockassistant/orchestrator/internal/models"
)

// PortfolioRepository provides Portfolio/StockPosition persistence,
// read by the rebalancing agent (C7). (expansion: supplemented from
// original_source's Portfolio/StockPosition tables.)
type PortfolioRepository struct {
	db *DB
}

// GetOrCreateForUser returns the user's single portfolio, creating an
// empty one on first access (mirroring the 1:1 user-portfolio
// relationship in original_source's models.py).
func (r *PortfolioRepository) GetOrCreateForUser(ctx context.Context, userID string) (*models.Portfolio, error) {
	var p models.Portfolio
	err := r.db.GetContext(ctx, &p, `SELECT id, user_id, created_at, updated_at FROM portfolios WHERE user_id = $1`, userID)
	if err == nil {
		return &p, nil
	}
	if !IsNotFound(err) {
		return nil, err
	}

	p = models.Portfolio{ID: uuid.New().String(), UserID: userID}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO portfolios (id, user_id, created_at, updated_at) VALUES ($1, $2, now(), now())`,
		p.ID, p.UserID)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPositions returns every holding in a portfolio.
func (r *PortfolioRepository) ListPositions(ctx context.Context, portfolioID string) ([]*models.StockPosition, error) {
	var out []*models.StockPosition
	err := r.db.SelectContext(ctx, &out,
		`SELECT id, portfolio_id, ticker, quantity, purchase_price, purchase_date, created_at, updated_at
		 FROM stock_positions WHERE portfolio_id = $1`, portfolioID)
	return out, err
}

// AddPosition inserts a new holding.
func (r *PortfolioRepository) AddPosition(ctx context.Context, pos *models.StockPosition) error {
	if pos.ID == "" {
		pos.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO stock_positions (id, portfolio_id, ticker, quantity, purchase_price, purchase_date, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now(), now())`,
		pos.ID, pos.PortfolioID, pos.Ticker, pos.Quantity, pos.PurchasePrice, pos.PurchaseDate)
	return err
}
