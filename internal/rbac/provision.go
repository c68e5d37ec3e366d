package rbac

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"adminhub.org/internal/config"
)

// Provisioner maintains the permission catalog from discovered API routes.
// The three-step ensure-chain (module, feature, action) is the only path by
// which permissions enter the system; it is idempotent under repeated runs.
type Provisioner struct {
	perms PermissionStore
	menu  config.MenuConfig
	log   *zap.Logger
}

// NewProvisioner constructs a Provisioner.
func NewProvisioner(perms PermissionStore, menu config.MenuConfig, log *zap.Logger) *Provisioner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Provisioner{perms: perms, menu: menu, log: log.Named("provision")}
}

// EnsureAPIPermission makes sure the module, feature and action permissions
// for an endpoint exist and are correctly parented. Repeat calls no-op or only
// reconcile parent links.
func (p *Provisioner) EnsureAPIPermission(ctx context.Context, path, method, summary string) error {
	module := ModuleFromPath(path)
	parentMenu, ok := p.menu.ModuleToParentMenu[module]
	if !ok || parentMenu == "" {
		parentMenu = "system"
	}

	modulePerm, err := p.ensureModule(ctx, parentMenu)
	if err != nil {
		return fmt.Errorf("ensure module %q: %w", parentMenu, err)
	}
	featurePerm, err := p.ensureFeature(ctx, parentMenu, module, modulePerm.ID)
	if err != nil {
		return fmt.Errorf("ensure feature %q: %w", module, err)
	}
	if err := p.ensureAction(ctx, path, method, summary, featurePerm.ID); err != nil {
		return fmt.Errorf("ensure action %s %s: %w", method, path, err)
	}
	return nil
}

func (p *Provisioner) ensureModule(ctx context.Context, parentMenu string) (*Permission, error) {
	code := ModuleCode(parentMenu)
	perm, err := p.perms.FindByCode(ctx, code)
	if err == nil {
		return perm, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	info, ok := p.menu.ParentMenuInfo[parentMenu]
	if !ok {
		info = config.MenuInfo{Name: parentMenu}
	}
	perm = &Permission{
		Name:        info.Name,
		Code:        code,
		Description: info.Desc,
		Type:        PermissionModule,
		ParentID:    0,
		IsActive:    true,
	}
	if err := p.perms.Create(ctx, perm); err != nil {
		// Lost a creation race; the row exists now.
		if errors.Is(err, ErrAlreadyExists) {
			return p.perms.FindByCode(ctx, code)
		}
		return nil, err
	}
	p.log.Info("module permission created", zap.String("code", code))
	return perm, nil
}

func (p *Provisioner) ensureFeature(ctx context.Context, parentMenu, module string, moduleID int64) (*Permission, error) {
	code := FeatureCode(parentMenu, module)
	perm, err := p.perms.FindByCode(ctx, code)
	if err == nil {
		if perm.ParentID != moduleID {
			if err := p.perms.UpdateParent(ctx, perm.ID, moduleID); err != nil {
				return nil, err
			}
			perm.ParentID = moduleID
		}
		return perm, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	name, ok := p.menu.SubMenuNames[module]
	if !ok || name == "" {
		name = module + "管理"
	}
	perm = &Permission{
		Name:     name,
		Code:     code,
		Type:     PermissionFeature,
		ParentID: moduleID,
		IsActive: true,
	}
	if err := p.perms.Create(ctx, perm); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return p.perms.FindByCode(ctx, code)
		}
		return nil, err
	}
	p.log.Info("feature permission created", zap.String("code", code))
	return perm, nil
}

func (p *Provisioner) ensureAction(ctx context.Context, path, method, summary string, featureID int64) error {
	code := GeneratePermissionCode(PermissionAction, path, method)
	perm, err := p.perms.FindByCode(ctx, code)
	if err == nil {
		if perm.ParentID != featureID {
			return p.perms.UpdateParent(ctx, perm.ID, featureID)
		}
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}

	name := summary
	if name == "" {
		name = code
	}
	perm = &Permission{
		Name:      name,
		Code:      code,
		Type:      PermissionAction,
		ParentID:  featureID,
		IsActive:  true,
		APIPath:   path,
		APIMethod: method,
	}
	if err := p.perms.Create(ctx, perm); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil
		}
		return err
	}
	p.log.Info("action permission created", zap.String("code", code))
	return nil
}

// DeleteAPIPermission removes the action permission bound to an endpoint that
// disappeared from the route table. Missing rows are not an error.
func (p *Provisioner) DeleteAPIPermission(ctx context.Context, path, method string) error {
	code := GeneratePermissionCode(PermissionAction, path, method)
	if err := p.perms.DeleteByCode(ctx, code); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}
