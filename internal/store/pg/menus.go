package pg

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"coursedesk.org/internal/catalog"
)

// MenusForType returns the top-level menus configured for an organization
// type, ordered by menu_order, each with its child menus attached.
func (s *Store) MenusForType(ctx context.Context, organizationType string) ([]catalog.Menu, error) {
	rows, err := s.db.QueryContext(ctx, `
		select m.menu_id, m.menu_parent_id, m.route_name, m.path_name, m.is_premium,
		       m.menu_status_code, m.allowed_roles
		from organization_menus m
		left join organization_menus p on p.menu_id = m.menu_parent_id
		where coalesce(p.organization_type_code, m.organization_type_code) = $1
		order by m.menu_parent_id nulls first, m.menu_order asc
	`, organizationType)
	if err != nil {
		return nil, fmt.Errorf("query menus: %w", err)
	}
	defer rows.Close()

	var (
		top   []catalog.Menu
		index = map[string]int{}
	)
	for rows.Next() {
		var (
			id, name, path string
			parent         sql.NullString
			premium        bool
			status         sql.NullString
			roles          []string
		)
		if err := rows.Scan(&id, &parent, &name, &path, &premium, &status, pq.Array(&roles)); err != nil {
			return nil, err
		}
		menu := catalog.Menu{
			Name:         name,
			Path:         path,
			IsPremium:    premium,
			StatusCode:   nullString(status),
			AllowedRoles: roles,
		}
		if !parent.Valid {
			index[id] = len(top)
			top = append(top, menu)
			continue
		}
		if i, ok := index[parent.String]; ok {
			top[i].SubMenus = append(top[i].SubMenus, menu)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if top == nil {
		top = []catalog.Menu{}
	}
	return top, nil
}
