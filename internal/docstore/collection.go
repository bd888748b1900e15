package docstore

import "context"

// Collection binds a Store to one collection name.
type Collection struct {
	store *Store
	name  string
}

// Collection returns a handle scoped to name.
func (store *Store) Collection(name string) *Collection {
	return &Collection{store: store, name: name}
}

func (collection *Collection) Name() string {
	return collection.name
}

func (collection *Collection) Get(ctx context.Context, key string) (Record, error) {
	return collection.store.Get(ctx, collection.name, key)
}

func (collection *Collection) List(ctx context.Context) (Snapshot, error) {
	return collection.store.List(ctx, collection.name)
}

func (collection *Collection) Set(ctx context.Context, key string, body any) error {
	return collection.store.Set(ctx, collection.name, key, body)
}

func (collection *Collection) Update(ctx context.Context, key string, fields map[string]any) error {
	return collection.store.Update(ctx, collection.name, key, fields)
}

func (collection *Collection) ArrayAppend(ctx context.Context, key, field string, values ...any) error {
	return collection.store.ArrayAppend(ctx, collection.name, key, field, values...)
}

func (collection *Collection) Delete(ctx context.Context, key string) error {
	return collection.store.Delete(ctx, collection.name, key)
}

func (collection *Collection) Clear(ctx context.Context) (int, error) {
	return collection.store.Clear(ctx, collection.name)
}

func (collection *Collection) Commit(ctx context.Context, writes []Write) error {
	return collection.store.Commit(ctx, collection.name, writes)
}

func (collection *Collection) Subscribe(ctx context.Context) (<-chan Snapshot, <-chan error) {
	return collection.store.Subscribe(ctx, collection.name)
}
