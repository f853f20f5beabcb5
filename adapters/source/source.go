// Package source resolves ImageSource handles into encoded image bytes.
package source

import (
	"context"
	"fmt"

	"github.com/Skryldev/photoreel/core"
	apperrors "github.com/Skryldev/photoreel/errors"
)

// Adapter dispatches each ImageSource variant to its fetcher.  It holds no
// per-request state and is safe for concurrent use.
type Adapter struct {
	library  core.LibraryFetcher
	transfer core.TransferFetcher
}

// NewAdapter wires the two fetchers.  Either may be nil, in which case
// sources of that variant fail with ErrInvalidSource.
func NewAdapter(library core.LibraryFetcher, transfer core.TransferFetcher) *Adapter {
	return &Adapter{library: library, transfer: transfer}
}

func (a *Adapter) Convert(ctx context.Context, src core.ImageSource) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryFetch, "source.convert", err)
	}

	var (
		data []byte
		err  error
	)
	switch s := src.(type) {
	case core.LibraryID:
		if a.library == nil {
			return nil, apperrors.New(apperrors.CategoryFetch, "source.library",
				fmt.Errorf("%w: no library configured", apperrors.ErrInvalidSource))
		}
		data, err = a.library.FetchLibrary(ctx, s)
	case core.TransferHandle:
		if a.transfer == nil {
			return nil, apperrors.New(apperrors.CategoryFetch, "source.transfer",
				fmt.Errorf("%w: no transfer store configured", apperrors.ErrInvalidSource))
		}
		data, err = a.transfer.FetchTransfer(ctx, s)
	default:
		return nil, apperrors.New(apperrors.CategoryFetch, "source.convert",
			fmt.Errorf("%w: %T", apperrors.ErrInvalidSource, src))
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryFetch, "source.convert", err)
	}
	if len(data) == 0 {
		return nil, apperrors.New(apperrors.CategoryFetch, "source.convert",
			fmt.Errorf("%w: %s", apperrors.ErrNoData, src))
	}
	return data, nil
}

var _ core.SourceAdapter = (*Adapter)(nil)
