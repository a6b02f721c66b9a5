// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Neighborly Contributors

package auth

import "context"

// Transactor runs fn inside a storage transaction. Repositories called with
// the context passed to fn participate in that transaction. A non-nil error
// from fn rolls the transaction back.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
