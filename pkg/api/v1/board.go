// Package v1 holds the wire types of the board REST contract. Field names
// follow the backend's JSON; binding tags are enforced by gin on the server
// and by Validate on the client.
package v1

// Workspace represents a workspace
type Workspace struct {
	ID                int64   `json:"id" binding:"gt=0"`
	Nombre            string  `json:"nombre" binding:"required"`
	Descripcion       string  `json:"descripcion"`
	UsuariosAsignados []int64 `json:"usuariosAsignados,omitempty"`
}

// Board represents a Kanban board
type Board struct {
	ID          int64  `json:"id" binding:"gt=0"`
	Nombre      string `json:"nombre" binding:"required"`
	Descripcion string `json:"descripcion"`
	WorkspaceID int64  `json:"workspaceId"`
}

// List is one column of a board, with its cards in display order.
// Cards may be absent or null in backend payloads.
type List struct {
	ID      int64   `json:"id" binding:"gt=0"`
	Nombre  string  `json:"nombre" binding:"required"`
	MaxWIP  *int    `json:"maxwip" binding:"omitempty,gte=0"`
	BoardID int64   `json:"board_id,omitempty"`
	Cards   []*Card `json:"cards" binding:"omitempty,dive,required"`
}

// Card is a unit of work on a list.
type Card struct {
	ID               int64  `json:"id" binding:"gt=0"`
	ListaID          int64  `json:"lista_id"`
	Nombre           string `json:"nombre" binding:"required"`
	Descripcion      string `json:"descripcion"`
	FechaVencimiento *Date  `json:"fecha_vencimiento"`
	Etiqueta         string `json:"etiqueta"`
	UsuarioAsignado  *int64 `json:"usuario_asignado"`
	UsuarioNombre    string `json:"usuario_nombre"`
	Estado           string `json:"estado" binding:"omitempty,oneof=open closed"`
	Posicion         int    `json:"posicion"`
}

// Task is a checklist item on a card.
type Task struct {
	ID               int64  `json:"id" binding:"gt=0"`
	CardID           int64  `json:"card_id"`
	Nombre           string `json:"nombre" binding:"required"`
	Descripcion      string `json:"descripcion"`
	Estado           string `json:"estado" binding:"omitempty,oneof=open closed"`
	FechaVencimiento *Date  `json:"fecha_vencimiento"`
}

// StatEntry is one slice of the board dashboard.
type StatEntry struct {
	Name  string `json:"name" binding:"required"`
	Value int    `json:"value" binding:"gte=0"`
	Color string `json:"color"`
}

// LiveMessage is pushed over the board websocket.
type LiveMessage struct {
	Type    string `json:"type"`
	BoardID int64  `json:"board_id"`
	Reason  string `json:"reason,omitempty"`
}

// ErrorBody is the error envelope returned by the backend. Older backends
// report the message under "msg".
type ErrorBody struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Msg     string `json:"msg,omitempty"`
}

// Text returns whichever message field is populated.
func (e ErrorBody) Text() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Msg
}
