package models

import (
	"github.com/lizmareco/tablero/internal/common/constants"
	v1 "github.com/lizmareco/tablero/pkg/api/v1"
)

// ListFromAPI converts a validated wire list. Missing card sequences become
// empty; card positions follow payload order.
func ListFromAPI(in *v1.List) *List {
	l := &List{
		ID:      in.ID,
		BoardID: in.BoardID,
		Name:    in.Nombre,
		Cards:   make([]*Card, 0, len(in.Cards)),
	}
	if in.MaxWIP != nil {
		l.MaxWIP = *in.MaxWIP
	}
	for _, c := range in.Cards {
		l.Cards = append(l.Cards, CardFromAPI(c))
	}
	l.Renumber()
	return l
}

// CardFromAPI converts a wire card.
func CardFromAPI(in *v1.Card) *Card {
	status := in.Estado
	if status == "" {
		status = constants.StatusOpen
	}
	c := &Card{
		ID:               in.ID,
		ListID:           in.ListaID,
		Title:            in.Nombre,
		Description:      in.Descripcion,
		DueDate:          in.FechaVencimiento.Ptr(),
		Label:            in.Etiqueta,
		AssignedUserName: in.UsuarioNombre,
		Status:           status,
		Position:         in.Posicion,
	}
	if in.UsuarioAsignado != nil {
		id := *in.UsuarioAsignado
		c.AssignedUserID = &id
	}
	return c
}

// TaskFromAPI converts a wire task.
func TaskFromAPI(in *v1.Task) *Task {
	status := in.Estado
	if status == "" {
		status = constants.StatusOpen
	}
	return &Task{
		ID:          in.ID,
		CardID:      in.CardID,
		Name:        in.Nombre,
		Description: in.Descripcion,
		Status:      status,
		DueDate:     in.FechaVencimiento.Ptr(),
	}
}

// ToAPI converts the list back to its wire form.
func (l *List) ToAPI() *v1.List {
	out := &v1.List{
		ID:      l.ID,
		Nombre:  l.Name,
		BoardID: l.BoardID,
		Cards:   make([]*v1.Card, len(l.Cards)),
	}
	if l.MaxWIP > 0 {
		wip := l.MaxWIP
		out.MaxWIP = &wip
	}
	for i, c := range l.Cards {
		out.Cards[i] = c.ToAPI()
	}
	return out
}

// ToAPI converts the card to its wire form.
func (c *Card) ToAPI() *v1.Card {
	out := &v1.Card{
		ID:            c.ID,
		ListaID:       c.ListID,
		Nombre:        c.Title,
		Descripcion:   c.Description,
		Etiqueta:      c.Label,
		UsuarioNombre: c.AssignedUserName,
		Estado:        c.Status,
		Posicion:      c.Position,
	}
	if c.DueDate != nil {
		out.FechaVencimiento = v1.NewDate(*c.DueDate)
	}
	if c.AssignedUserID != nil {
		id := *c.AssignedUserID
		out.UsuarioAsignado = &id
	}
	return out
}

// ToAPI converts the task to its wire form.
func (t *Task) ToAPI() *v1.Task {
	out := &v1.Task{
		ID:          t.ID,
		CardID:      t.CardID,
		Nombre:      t.Name,
		Descripcion: t.Description,
		Estado:      t.Status,
	}
	if t.DueDate != nil {
		out.FechaVencimiento = v1.NewDate(*t.DueDate)
	}
	return out
}

// BoardFromAPI converts a wire board without lists.
func BoardFromAPI(in *v1.Board) *Board {
	return &Board{
		ID:          in.ID,
		WorkspaceID: in.WorkspaceID,
		Name:        in.Nombre,
		Description: in.Descripcion,
	}
}

// ToAPI converts the board header to its wire form.
func (b *Board) ToAPI() *v1.Board {
	return &v1.Board{ID: b.ID, Nombre: b.Name, Descripcion: b.Description, WorkspaceID: b.WorkspaceID}
}

// WorkspaceFromAPI converts a wire workspace.
func WorkspaceFromAPI(in *v1.Workspace) *Workspace {
	return &Workspace{
		ID:          in.ID,
		Name:        in.Nombre,
		Description: in.Descripcion,
		UserIDs:     append([]int64(nil), in.UsuariosAsignados...),
	}
}

// ToAPI converts the workspace to its wire form.
func (w *Workspace) ToAPI() *v1.Workspace {
	return &v1.Workspace{
		ID:                w.ID,
		Nombre:            w.Name,
		Descripcion:       w.Description,
		UsuariosAsignados: append([]int64(nil), w.UserIDs...),
	}
}

// UserFromAPI converts a wire user.
func UserFromAPI(in *v1.User) *User {
	return &User{ID: in.ID, Name: in.Nombre, Email: in.Email}
}

// ToAPI converts the user to its wire form.
func (u *User) ToAPI() *v1.User {
	return &v1.User{ID: u.ID, Nombre: u.Name, Email: u.Email}
}
