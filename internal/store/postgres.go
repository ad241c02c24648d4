package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"github.com/iurnickita/scrapmart/internal/model"
	"github.com/iurnickita/scrapmart/internal/secret"
)

type pgStore struct {
	database *sql.DB
	box      *secret.Box
}

func NewPostgresStore(dsn string, box *secret.Box) (Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, classify(err)
	}
	if err = migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return newPgStore(db, box), nil
}

func newPgStore(db *sql.DB, box *secret.Box) *pgStore {
	return &pgStore{database: db, box: box}
}

func migrate(db *sql.DB) error {
	statements := []string{
		// Каталог. Цены меняются, заказы хранят свою копию цены
		"CREATE TABLE IF NOT EXISTS scrap_materials (" +
			" id VARCHAR (40) PRIMARY KEY," +
			" name VARCHAR (100) NOT NULL," +
			" category VARCHAR (40) NOT NULL," +
			" price NUMERIC (12, 2) NOT NULL CHECK (price >= 0)," +
			" unit VARCHAR (20) NOT NULL," +
			" min_quantity NUMERIC (12, 3) NOT NULL CHECK (min_quantity >= 0)," +
			" active BOOLEAN NOT NULL DEFAULT true" +
			" );",
		"CREATE SEQUENCE IF NOT EXISTS order_number_seq START 100000;",
		// Таблица заказов.
		// Создается одна строка на заказ, после чего меняется только статус
		"CREATE TABLE IF NOT EXISTS orders (" +
			" number VARCHAR (20) PRIMARY KEY," +
			" user_id VARCHAR (64) NOT NULL," +
			" customer_name VARCHAR (200) NOT NULL," +
			" phone VARCHAR (20) NOT NULL," +
			" address TEXT NOT NULL," +
			" landmark TEXT NOT NULL DEFAULT ''," +
			" ward INTEGER NOT NULL CHECK (ward BETWEEN 1 AND 43)," +
			" pickup_date DATE NOT NULL," +
			" pickup_slot VARCHAR (20) NOT NULL," +
			" total_amount NUMERIC (14, 2) NOT NULL," +
			" payment_method VARCHAR (20) NOT NULL," +
			" payment_details BYTEA," +
			" status VARCHAR (20) NOT NULL," +
			" created_at TIMESTAMPTZ NOT NULL," +
			" updated_at TIMESTAMPTZ NOT NULL" +
			" );",
		"CREATE INDEX IF NOT EXISTS orders_user_id_idx ON orders (user_id);",
		"CREATE TABLE IF NOT EXISTS order_items (" +
			" order_number VARCHAR (20) NOT NULL REFERENCES orders (number)," +
			" position INTEGER NOT NULL," +
			" material_id VARCHAR (40) NOT NULL," +
			" material_name VARCHAR (100) NOT NULL," +
			" unit VARCHAR (20) NOT NULL," +
			" quantity NUMERIC (12, 3) NOT NULL CHECK (quantity > 0)," +
			" unit_price NUMERIC (12, 2) NOT NULL," +
			" line_total NUMERIC (14, 2) NOT NULL," +
			" PRIMARY KEY (order_number, position)" +
			" );",
		"CREATE TABLE IF NOT EXISTS referral_codes (" +
			" code VARCHAR (32) PRIMARY KEY," +
			" user_id VARCHAR (64) NOT NULL UNIQUE," +
			" active BOOLEAN NOT NULL DEFAULT true," +
			" created_at TIMESTAMPTZ NOT NULL" +
			" );",
		// Один реферал на приглашённого пользователя
		"CREATE TABLE IF NOT EXISTS referrals (" +
			" id UUID PRIMARY KEY," +
			" referrer_user_id VARCHAR (64)," +
			" referred_user_id VARCHAR (64) NOT NULL UNIQUE," +
			" code VARCHAR (32) NOT NULL," +
			" status VARCHAR (20) NOT NULL," +
			" reward_amount NUMERIC (12, 2)," +
			" created_at TIMESTAMPTZ NOT NULL," +
			" completed_at TIMESTAMPTZ" +
			" );",
		"CREATE INDEX IF NOT EXISTS referrals_referrer_idx ON referrals (referrer_user_id);",
	}
	for _, statement := range statements {
		if _, err := db.Exec(statement); err != nil {
			return err
		}
	}
	return nil
}

// classify приводит ошибки драйвера к ошибкам хранилища
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNoRows
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return ErrAlreadyExists
		case strings.HasPrefix(pgErr.Code, "08"), // connection exception
			strings.HasPrefix(pgErr.Code, "57P"), // admin shutdown, cannot connect now
			pgErr.Code == "40001", pgErr.Code == "40P01":
			return fmt.Errorf("%w: %v", ErrTransient, err)
		}
		return err
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) || errors.Is(err, driver.ErrBadConn) {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return err
}

func (store *pgStore) MaterialGetActive(ctx context.Context) ([]model.Material, error) {
	rows, err := store.database.QueryContext(ctx,
		"SELECT id, name, category, price, unit, min_quantity, active"+
			" FROM scrap_materials"+
			" WHERE active"+
			" ORDER BY category, name")
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var materials []model.Material
	for rows.Next() {
		var m model.Material
		err = rows.Scan(&m.ID, &m.Name, &m.Category, &m.Price, &m.Unit, &m.MinQuantity, &m.Active)
		if err != nil {
			return nil, err
		}
		materials = append(materials, m)
	}
	return materials, classify(rows.Err())
}

func (store *pgStore) MaterialPut(ctx context.Context, m model.Material) error {
	_, err := store.database.ExecContext(ctx,
		"INSERT INTO scrap_materials (id, name, category, price, unit, min_quantity, active)"+
			" VALUES ($1, $2, $3, $4, $5, $6, $7)"+
			" ON CONFLICT (id) DO UPDATE SET"+
			" name = EXCLUDED.name, category = EXCLUDED.category, price = EXCLUDED.price,"+
			" unit = EXCLUDED.unit, min_quantity = EXCLUDED.min_quantity, active = EXCLUDED.active",
		m.ID, m.Name, m.Category, m.Price, m.Unit, m.MinQuantity, m.Active)
	return classify(err)
}

func (store *pgStore) OrderNextSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := store.database.QueryRowContext(ctx, "SELECT nextval('order_number_seq')").Scan(&seq)
	return seq, classify(err)
}

func (store *pgStore) OrderPost(ctx context.Context, order model.Order) (err error) {
	details, err := json.Marshal(order.PaymentDetails)
	if err != nil {
		return err
	}
	sealed, err := store.box.Seal(details)
	if err != nil {
		return err
	}

	tx, err := store.database.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
			return
		}
		err = classify(tx.Commit())
	}()

	// Запись нового заказа
	_, err = tx.ExecContext(ctx,
		"INSERT INTO orders (number, user_id, customer_name, phone, address, landmark, ward,"+
			" pickup_date, pickup_slot, total_amount, payment_method, payment_details, status, created_at, updated_at)"+
			" VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)",
		order.Number,
		order.UserID,
		order.CustomerName,
		order.Phone,
		order.Address,
		order.Landmark,
		order.Ward,
		order.PickupDate,
		string(order.PickupSlot),
		order.TotalAmount,
		string(order.PaymentMethod),
		sealed,
		string(order.Status),
		order.CreatedAt,
		order.UpdatedAt)
	if err != nil {
		return classify(err)
	}

	// Позиции заказа в исходном порядке
	for i, item := range order.Items {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO order_items (order_number, position, material_id, material_name, unit, quantity, unit_price, line_total)"+
				" VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
			order.Number, i, item.MaterialID, item.MaterialName, item.Unit, item.Quantity, item.UnitPrice, item.LineTotal)
		if err != nil {
			return classify(err)
		}
	}
	return nil
}

const orderColumns = "number, user_id, customer_name, phone, address, landmark, ward, pickup_date," +
	" pickup_slot, total_amount, payment_method, payment_details, status, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func (store *pgStore) scanOrder(row rowScanner) (model.Order, error) {
	var (
		order      model.Order
		pickupDate time.Time
		slot       string
		method     string
		status     string
		sealed     []byte
	)
	err := row.Scan(&order.Number,
		&order.UserID,
		&order.CustomerName,
		&order.Phone,
		&order.Address,
		&order.Landmark,
		&order.Ward,
		&pickupDate,
		&slot,
		&order.TotalAmount,
		&method,
		&sealed,
		&status,
		&order.CreatedAt,
		&order.UpdatedAt)
	if err != nil {
		return model.Order{}, classify(err)
	}
	order.PickupDate = pickupDate.Format(model.DateLayout)
	order.PickupSlot = model.PickupSlot(slot)
	order.PaymentMethod = model.PaymentMethod(method)
	order.Status = model.OrderStatus(status)

	details, err := store.box.Open(sealed)
	if err != nil {
		return model.Order{}, fmt.Errorf("order %s payment details: %w", order.Number, err)
	}
	if len(details) > 0 {
		if err = json.Unmarshal(details, &order.PaymentDetails); err != nil {
			return model.Order{}, err
		}
	}
	return order, nil
}

func (store *pgStore) OrderGet(ctx context.Context, number string) (model.Order, error) {
	row := store.database.QueryRowContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE number = $1", number)
	order, err := store.scanOrder(row)
	if err != nil {
		return model.Order{}, err
	}
	items, err := store.orderItems(ctx, []string{order.Number})
	if err != nil {
		return model.Order{}, err
	}
	order.Items = items[order.Number]
	return order, nil
}

func (store *pgStore) OrderGetByCustomer(ctx context.Context, userID string) ([]model.Order, error) {
	rows, err := store.database.QueryContext(ctx,
		"SELECT "+orderColumns+" FROM orders"+
			" WHERE user_id = $1"+
			" ORDER BY created_at DESC, number DESC",
		userID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var (
		orders  []model.Order
		numbers []string
	)
	for rows.Next() {
		order, err := store.scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
		numbers = append(numbers, order.Number)
	}
	if err = rows.Err(); err != nil {
		return nil, classify(err)
	}
	if len(orders) == 0 {
		return nil, nil
	}

	items, err := store.orderItems(ctx, numbers)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].Number]
	}
	return orders, nil
}

func (store *pgStore) orderItems(ctx context.Context, numbers []string) (map[string][]model.OrderLineItem, error) {
	rows, err := store.database.QueryContext(ctx,
		"SELECT order_number, material_id, material_name, unit, quantity, unit_price, line_total"+
			" FROM order_items"+
			" WHERE order_number = ANY($1)"+
			" ORDER BY order_number, position",
		numbers)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	items := make(map[string][]model.OrderLineItem, len(numbers))
	for rows.Next() {
		var (
			number string
			item   model.OrderLineItem
		)
		err = rows.Scan(&number, &item.MaterialID, &item.MaterialName, &item.Unit,
			&item.Quantity, &item.UnitPrice, &item.LineTotal)
		if err != nil {
			return nil, err
		}
		items[number] = append(items[number], item)
	}
	return items, classify(rows.Err())
}

// OrderTransition меняет статус только если текущий статус равен from.
// Статус выступает версией записи: из двух конкурирующих переходов проходит один.
// Переход и чтение результата - одна команда, поэтому зафиксированный переход не превращается в ошибку.
func (store *pgStore) OrderTransition(ctx context.Context, number string, from, to model.OrderStatus, at time.Time) (model.Order, error) {
	row := store.database.QueryRowContext(ctx,
		"UPDATE orders"+
			" SET status = $1, updated_at = $2"+
			" WHERE number = $3"+
			"   AND status = $4"+
			" RETURNING "+orderColumns,
		string(to), at, number, string(from))
	order, err := store.scanOrder(row)
	if errors.Is(err, ErrNoRows) {
		// заказа нет, либо статус уже другой
		current, getErr := store.OrderGet(ctx, number)
		if getErr != nil {
			return model.Order{}, getErr
		}
		return current, ErrStatusConflict
	}
	if err != nil {
		return model.Order{}, err
	}

	// позиции не меняются при переходе; без них заказ всё равно возвращается
	items, err := store.orderItems(ctx, []string{order.Number})
	if err == nil {
		order.Items = items[order.Number]
	}
	return order, nil
}

func (store *pgStore) OrderCompletedQuantity(ctx context.Context, userID string, unit string, since time.Time) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := store.database.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(i.quantity), 0)"+
			" FROM order_items AS i"+
			" JOIN orders AS o ON o.number = i.order_number"+
			" WHERE o.user_id = $1"+
			"   AND o.status = $2"+
			"   AND i.unit = $3"+
			"   AND o.created_at >= $4",
		userID, string(model.OrderStatusCompleted), unit, since).Scan(&sum)
	if err != nil {
		return decimal.Zero, classify(err)
	}
	return sum, nil
}

func (store *pgStore) ReferralCodePost(ctx context.Context, code model.ReferralCode) error {
	_, err := store.database.ExecContext(ctx,
		"INSERT INTO referral_codes (code, user_id, active, created_at)"+
			" VALUES ($1, $2, $3, $4)",
		code.Code, code.UserID, code.Active, code.CreatedAt)
	return classify(err)
}

func (store *pgStore) ReferralCodeGet(ctx context.Context, code string) (model.ReferralCode, error) {
	var rc model.ReferralCode
	err := store.database.QueryRowContext(ctx,
		"SELECT code, user_id, active, created_at FROM referral_codes WHERE code = $1",
		code).Scan(&rc.Code, &rc.UserID, &rc.Active, &rc.CreatedAt)
	if err != nil {
		return model.ReferralCode{}, classify(err)
	}
	return rc, nil
}

func (store *pgStore) ReferralCodeGetByUser(ctx context.Context, userID string) (model.ReferralCode, error) {
	var rc model.ReferralCode
	err := store.database.QueryRowContext(ctx,
		"SELECT code, user_id, active, created_at FROM referral_codes WHERE user_id = $1",
		userID).Scan(&rc.Code, &rc.UserID, &rc.Active, &rc.CreatedAt)
	if err != nil {
		return model.ReferralCode{}, classify(err)
	}
	return rc, nil
}

// Коды не удаляются, только помечаются неактивными
func (store *pgStore) ReferralCodeDeactivate(ctx context.Context, userID string) error {
	result, err := store.database.ExecContext(ctx,
		"UPDATE referral_codes SET active = false WHERE user_id = $1", userID)
	if err != nil {
		return classify(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return classify(err)
	}
	if affected == 0 {
		return ErrNoRows
	}
	return nil
}

func (store *pgStore) ReferralPost(ctx context.Context, referral model.Referral) error {
	_, err := store.database.ExecContext(ctx,
		"INSERT INTO referrals (id, referrer_user_id, referred_user_id, code, status, created_at)"+
			" VALUES ($1, $2, $3, $4, $5, $6)",
		referral.ID,
		nullString(referral.ReferrerUserID),
		referral.ReferredUserID,
		referral.Code,
		string(referral.Status),
		referral.CreatedAt)
	return classify(err)
}

const referralColumns = "id, referrer_user_id, referred_user_id, code, status, reward_amount, created_at, completed_at"

func scanReferral(row rowScanner) (model.Referral, error) {
	var (
		referral  model.Referral
		referrer  sql.NullString
		status    string
		reward    decimal.NullDecimal
		completed sql.NullTime
	)
	err := row.Scan(&referral.ID, &referrer, &referral.ReferredUserID, &referral.Code,
		&status, &reward, &referral.CreatedAt, &completed)
	if err != nil {
		return model.Referral{}, classify(err)
	}
	referral.Status = model.ReferralStatus(status)
	if referrer.Valid {
		referral.ReferrerUserID = &referrer.String
	}
	if reward.Valid {
		referral.RewardAmount = &reward.Decimal
	}
	if completed.Valid {
		referral.CompletedAt = &completed.Time
	}
	return referral, nil
}

func (store *pgStore) ReferralGetByReferred(ctx context.Context, userID string) (model.Referral, error) {
	row := store.database.QueryRowContext(ctx,
		"SELECT "+referralColumns+" FROM referrals WHERE referred_user_id = $1", userID)
	return scanReferral(row)
}

func (store *pgStore) ReferralGetByReferrer(ctx context.Context, userID string) ([]model.Referral, error) {
	rows, err := store.database.QueryContext(ctx,
		"SELECT "+referralColumns+" FROM referrals"+
			" WHERE referrer_user_id = $1"+
			" ORDER BY created_at",
		userID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var referrals []model.Referral
	for rows.Next() {
		referral, err := scanReferral(rows)
		if err != nil {
			return nil, err
		}
		referrals = append(referrals, referral)
	}
	return referrals, classify(rows.Err())
}

// ReferralComplete - compare-and-set по статусу: начисление проходит ровно один раз
func (store *pgStore) ReferralComplete(ctx context.Context, id string, reward decimal.Decimal, at time.Time) (bool, error) {
	result, err := store.database.ExecContext(ctx,
		"UPDATE referrals"+
			" SET status = $1, reward_amount = $2, completed_at = $3"+
			" WHERE id = $4"+
			"   AND status = $5",
		string(model.ReferralStatusCompleted), reward, at, id, string(model.ReferralStatusPending))
	if err != nil {
		return false, classify(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, classify(err)
	}
	if affected == 1 {
		return true, nil
	}

	var exists bool
	err = store.database.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM referrals WHERE id = $1)", id).Scan(&exists)
	if err != nil {
		return false, classify(err)
	}
	if !exists {
		return false, ErrNoRows
	}
	return false, nil
}

func (store *pgStore) Close() error {
	return store.database.Close()
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
