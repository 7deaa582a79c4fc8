package repository

import (
	"database/sql"
	"errors"

	"github.com/boilerkit/boilerkit/internal/model"
	"github.com/jmoiron/sqlx"
)

var ErrSubscriptionNotFound = errors.New("subscription not found")

type SubscriptionRepository interface {
	Create(subscription *model.Subscription) error
	ByUserID(userID string) (*model.Subscription, error)
	ByProviderCustomerID(providerCustomerID string) (*model.Subscription, error)
	ByProviderSubscriptionID(providerSubID string) (*model.Subscription, error)
	Update(subscription *model.Subscription) error
}

type subscriptionRepository struct {
	db *sqlx.DB
}

func NewSubscriptionRepository(db *sqlx.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) Create(subscription *model.Subscription) error {
	query := `
		INSERT INTO subscriptions (id, user_id, plan_id, status, provider, provider_customer_id, provider_subscription_id, current_period_end, amount, currency, interval, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.db.Exec(query,
		subscription.ID,
		subscription.UserID,
		subscription.PlanID,
		subscription.Status,
		subscription.Provider,
		subscription.ProviderCustomerID,
		subscription.ProviderSubscriptionID,
		subscription.CurrentPeriodEnd,
		subscription.Amount,
		subscription.Currency,
		subscription.Interval,
		subscription.CreatedAt,
		subscription.UpdatedAt,
	)
	return err
}

func (r *subscriptionRepository) ByUserID(userID string) (*model.Subscription, error) {
	var sub model.Subscription
	query := `SELECT * FROM subscriptions WHERE user_id = $1`

	err := r.db.Get(&sub, query, userID)
	if err == sql.ErrNoRows {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}

	return &sub, nil
}

func (r *subscriptionRepository) ByProviderCustomerID(providerCustomerID string) (*model.Subscription, error) {
	var sub model.Subscription
	query := `SELECT * FROM subscriptions WHERE provider_customer_id = $1`

	err := r.db.Get(&sub, query, providerCustomerID)
	if err == sql.ErrNoRows {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}

	return &sub, nil
}

func (r *subscriptionRepository) ByProviderSubscriptionID(providerSubID string) (*model.Subscription, error) {
	var sub model.Subscription
	query := `SELECT * FROM subscriptions WHERE provider_subscription_id = $1`

	err := r.db.Get(&sub, query, providerSubID)
	if err == sql.ErrNoRows {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}

	return &sub, nil
}

func (r *subscriptionRepository) Update(subscription *model.Subscription) error {
	query := `
		UPDATE subscriptions
		SET plan_id = $1, status = $2, provider = $3, provider_customer_id = $4, provider_subscription_id = $5, current_period_end = $6, amount = $7, currency = $8, interval = $9, updated_at = $10
		WHERE id = $11
	`
	_, err := r.db.Exec(query,
		subscription.PlanID,
		subscription.Status,
		subscription.Provider,
		subscription.ProviderCustomerID,
		subscription.ProviderSubscriptionID,
		subscription.CurrentPeriodEnd,
		subscription.Amount,
		subscription.Currency,
		subscription.Interval,
		subscription.UpdatedAt,
		subscription.ID,
	)
	return err
}
