package v1

// User is a registered account.
type User struct {
	ID     int64  `json:"id" binding:"gt=0"`
	Nombre string `json:"nombre"`
	Email  string `json:"email" binding:"required"`
}

// LoginRequest for POST /auth/login
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse carries the bearer token for subsequent requests.
type LoginResponse struct {
	Token string `json:"token" binding:"required"`
	User  *User  `json:"user" binding:"required"`
}

// RegisterRequest for POST /auth/register
type RegisterRequest struct {
	Nombre   string `json:"nombre" binding:"required,max=255"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

// CreateWorkspaceRequest for POST /workspaces
type CreateWorkspaceRequest struct {
	Nombre            string  `json:"nombre" binding:"required,max=255"`
	Descripcion       string  `json:"descripcion"`
	UsuariosAsignados []int64 `json:"usuariosAsignados"`
}

// CreateBoardRequest for POST /boards
type CreateBoardRequest struct {
	Nombre      string `json:"nombre" binding:"required,max=255"`
	Descripcion string `json:"descripcion"`
	WorkspaceID int64  `json:"workspaceId" binding:"gt=0"`
}

// CreateListRequest for POST /lists
type CreateListRequest struct {
	Nombre  string `json:"nombre" binding:"required,max=255"`
	MaxWIP  int    `json:"maxWIP" binding:"gt=0"`
	BoardID int64  `json:"boardId" binding:"gt=0"`
}

// UpdateListRequest for PUT /lists/{id}
type UpdateListRequest struct {
	Nombre string `json:"nombre" binding:"required,max=255"`
}

// MoveListRequest for PUT /lists/{id}/move
type MoveListRequest struct {
	Position *int `json:"position" binding:"required,gte=0"`
}

// MoveCardRequest for PUT /cards/{id}/move
type MoveCardRequest struct {
	ListID   int64 `json:"listId" binding:"gt=0"`
	Position *int  `json:"position" binding:"required,gte=0"`
}

// CreateCardRequest for POST /cards
type CreateCardRequest struct {
	Nombre           string `json:"nombre" binding:"required,max=255"`
	Descripcion      string `json:"descripcion"`
	FechaVencimiento *Date  `json:"fecha_vencimiento"`
	Etiqueta         string `json:"etiqueta"`
	ListaID          int64  `json:"lista_id" binding:"gt=0"`
	UsuarioAsignado  *int64 `json:"usuario_asignado"`
}

// UpdateCardRequest for PUT /cards/{id}
type UpdateCardRequest struct {
	Nombre           *string `json:"nombre,omitempty" binding:"omitempty,max=255"`
	Descripcion      *string `json:"descripcion,omitempty"`
	FechaVencimiento *Date   `json:"fecha_vencimiento,omitempty"`
	Etiqueta         *string `json:"etiqueta,omitempty"`
	UsuarioAsignado  *int64  `json:"usuario_asignado,omitempty"`
	Estado           *string `json:"estado,omitempty" binding:"omitempty,oneof=open closed"`
}

// CreateTaskRequest for POST /cards/{id}/tasks
type CreateTaskRequest struct {
	Nombre           string `json:"nombre" binding:"required,max=255"`
	Descripcion      string `json:"descripcion" binding:"required"`
	Estado           string `json:"estado" binding:"omitempty,oneof=open closed"`
	FechaVencimiento *Date  `json:"fecha_vencimiento" binding:"required"`
}

// UpdateTaskRequest for PUT /cards/tasks/{id}
type UpdateTaskRequest struct {
	Estado string `json:"estado" binding:"required,oneof=open closed"`
}
