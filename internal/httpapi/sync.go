package httpapi

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"adminhub.org/internal/rbac"
)

// SyncRoutes reconciles the stored route table and the permission catalog
// with the routes actually registered on the router. New authenticated
// routes get records plus their ensure-chain permissions; routes that
// disappeared lose both. Runs at startup; safe to repeat.
func (a *API) SyncRoutes(ctx context.Context) error {
	stored, err := a.store.Routes().List(ctx)
	if err != nil {
		return fmt.Errorf("list stored routes: %w", err)
	}
	storedByKey := make(map[string]*rbac.APIRoute, len(stored))
	for _, route := range stored {
		storedByKey[route.Method+" "+route.Path] = route
	}

	live := make(map[string]routeInfo, len(a.routes))
	for name, info := range a.routes {
		if info.Public {
			continue
		}
		live[name] = info
	}

	for key, info := range live {
		if existing, ok := storedByKey[key]; ok {
			if existing.Summary != info.Summary || existing.Tags != info.Module {
				existing.Summary = info.Summary
				existing.Tags = info.Module
				if err := a.store.Routes().Update(ctx, existing); err != nil {
					return fmt.Errorf("update route %s: %w", key, err)
				}
			}
		} else {
			route := &rbac.APIRoute{
				Path:    info.Path,
				Method:  info.Method,
				Summary: info.Summary,
				Tags:    info.Module,
			}
			err := a.store.Routes().Create(ctx, route)
			if errors.Is(err, rbac.ErrAlreadyExists) {
				// Another instance synced first; adopt its record.
				existing, ferr := a.store.Routes().FindByPathMethod(ctx, info.Path, info.Method)
				if ferr != nil {
					return fmt.Errorf("find route %s: %w", key, ferr)
				}
				existing.Summary = info.Summary
				existing.Tags = info.Module
				if err := a.store.Routes().Update(ctx, existing); err != nil {
					return fmt.Errorf("update route %s: %w", key, err)
				}
			} else if err != nil {
				return fmt.Errorf("create route %s: %w", key, err)
			} else {
				a.log.Info("route discovered",
					zap.String("method", info.Method), zap.String("path", info.Path))
			}
		}
		if err := a.prov.EnsureAPIPermission(ctx, info.Path, info.Method, info.Summary); err != nil {
			return err
		}
	}

	for key, route := range storedByKey {
		if _, ok := live[key]; ok {
			continue
		}
		if err := a.prov.DeleteAPIPermission(ctx, route.Path, route.Method); err != nil {
			return fmt.Errorf("delete permission for %s: %w", key, err)
		}
		if err := a.store.Routes().Delete(ctx, route.ID); err != nil {
			return fmt.Errorf("delete route %s: %w", key, err)
		}
		a.log.Info("route retired",
			zap.String("method", route.Method), zap.String("path", route.Path))
	}
	return nil
}
