package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo is the Postgres Store.
type Repo struct{ DB *pgxpool.Pool }

const (
	pgUniqueViolation = "23505"
	itemColumns       = `id, shop_id, name, price_cents, available, stock, created_at, updated_at`
	orderColumns      = `id, code, customer_id, shop_id, total_cents, payment_status, order_status, created_at, updated_at`
)

func scanItem(row pgx.Row) (CatalogItem, error) {
	var it CatalogItem
	err := row.Scan(&it.ID, &it.ShopID, &it.Name, &it.PriceCents, &it.Available, &it.Stock, &it.CreatedAt, &it.UpdatedAt)
	return it, err
}

func (r *Repo) GetItems(ctx context.Context, ids []string) (map[string]CatalogItem, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+itemColumns+` FROM menu_items WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]CatalogItem, len(ids))
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out[it.ID] = it
	}
	return out, rows.Err()
}

func (r *Repo) ListItems(ctx context.Context, shopID string) ([]CatalogItem, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+itemColumns+` FROM menu_items WHERE shop_id=$1 ORDER BY name`, shopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CatalogItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *Repo) PutItem(ctx context.Context, it CatalogItem) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO menu_items(id, shop_id, name, price_cents, available, stock)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE SET
			shop_id=EXCLUDED.shop_id, name=EXCLUDED.name, price_cents=EXCLUDED.price_cents,
			available=EXCLUDED.available, stock=EXCLUDED.stock, updated_at=now()`,
		it.ID, it.ShopID, it.Name, it.PriceCents, it.Available, it.Stock)
	return err
}

// DecrementStock is one conditional UPDATE: the row is only touched when
// enough stock is left, so concurrent callers cannot oversell.
func (r *Repo) DecrementStock(ctx context.Context, itemID string, qty int) (int, error) {
	var left int
	err := r.DB.QueryRow(ctx, `
		UPDATE menu_items SET stock = stock - $2, updated_at = now()
		WHERE id=$1 AND stock >= $2
		RETURNING stock`, itemID, qty).Scan(&left)
	if err == nil {
		return left, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}

	// Precondition failed; report what is there now.
	var name string
	var stock int
	err = r.DB.QueryRow(ctx, `SELECT name, stock FROM menu_items WHERE id=$1`, itemID).Scan(&name, &stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return 0, &InsufficientStockError{ItemID: itemID, ItemName: name, Requested: qty, Available: stock}
}

func (r *Repo) IncrementStock(ctx context.Context, itemID string, qty int) (int, error) {
	var left int
	err := r.DB.QueryRow(ctx, `
		UPDATE menu_items SET stock = stock + $2, updated_at = now()
		WHERE id=$1 RETURNING stock`, itemID, qty).Scan(&left)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return left, err
}

func (r *Repo) SetStock(ctx context.Context, itemID string, qty int) (CatalogItem, error) {
	it, err := scanItem(r.DB.QueryRow(ctx, `
		UPDATE menu_items SET stock = $2, updated_at = now()
		WHERE id=$1 RETURNING `+itemColumns, itemID, qty))
	if errors.Is(err, pgx.ErrNoRows) {
		return CatalogItem{}, ErrNotFound
	}
	return it, err
}

func (r *Repo) InsertOrder(ctx context.Context, o Order) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders(`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		o.ID, o.Code, o.CustomerID, o.ShopID, o.TotalCents, string(o.PaymentStatus), string(o.Status), o.CreatedAt, o.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == "orders_code_key" {
			return ErrDuplicateCode
		}
		return err
	}

	batch := &pgx.Batch{}
	for i, it := range o.Items {
		batch.Queue(`
			INSERT INTO order_items(order_id, line_no, menu_item_id, name, qty, price_cents)
			VALUES ($1,$2,$3,$4,$5,$6)`, o.ID, i, it.ItemID, it.Name, it.Qty, it.PriceCents)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var pay, status string
	err := row.Scan(&o.ID, &o.Code, &o.CustomerID, &o.ShopID, &o.TotalCents, &pay, &status, &o.CreatedAt, &o.UpdatedAt)
	o.PaymentStatus = PaymentStatus(pay)
	o.Status = Status(status)
	return o, err
}

func (r *Repo) GetOrder(ctx context.Context, id string) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}
	if err := r.loadItems(ctx, []*Order{&o}); err != nil {
		return Order{}, err
	}
	return o, nil
}

// CompareAndSetStatus only writes when the stored status still equals from.
func (r *Repo) CompareAndSetStatus(ctx context.Context, id string, from, to Status) (Order, error) {
	_, err := scanOrder(r.DB.QueryRow(ctx, `
		UPDATE orders SET order_status=$3, updated_at=now()
		WHERE id=$1 AND order_status=$2
		RETURNING `+orderColumns, id, string(from), string(to)))
	if err == nil {
		return r.GetOrder(ctx, id)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Order{}, err
	}
	cur, err := r.GetOrder(ctx, id)
	if err != nil {
		return Order{}, err
	}
	return cur, ErrStatusConflict
}

func (r *Repo) ListOrders(ctx context.Context, f OrderFilter) ([]Order, error) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.ShopID != "" {
		add("shop_id=$%d", f.ShopID)
	}
	if f.CustomerID != "" {
		add("customer_id=$%d", f.CustomerID)
	}
	if len(f.Statuses) > 0 {
		ss := make([]string, 0, len(f.Statuses))
		for _, s := range f.Statuses {
			ss = append(ss, string(s))
		}
		add("order_status = ANY($%d)", ss)
	}

	q := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	if f.NewestFirst {
		q += ` ORDER BY created_at DESC`
	} else {
		q += ` ORDER BY created_at ASC`
	}

	rows, err := r.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	ptrs := make([]*Order, len(out))
	for i := range out {
		ptrs[i] = &out[i]
	}
	return out, r.loadItems(ctx, ptrs)
}

func (r *Repo) loadItems(ctx context.Context, list []*Order) error {
	if len(list) == 0 {
		return nil
	}
	byID := make(map[string]*Order, len(list))
	ids := make([]string, 0, len(list))
	for _, o := range list {
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}
	rows, err := r.DB.Query(ctx, `
		SELECT order_id, menu_item_id, name, qty, price_cents
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, line_no`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var oid string
		var li LineItem
		if err := rows.Scan(&oid, &li.ItemID, &li.Name, &li.Qty, &li.PriceCents); err != nil {
			return err
		}
		if o, ok := byID[oid]; ok {
			o.Items = append(o.Items, li)
		}
	}
	return rows.Err()
}
