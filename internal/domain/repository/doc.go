// Package repository define las entidades y los contratos de almacenamiento
// que usa el core de autenticación.
//
// Las implementaciones viven en internal/store/memory (proceso único, tests)
// y internal/store/pg (PostgreSQL).
//
//	┌─────────────────────────────────────────────────────┐
//	│   auth / rbac / refresh / revocation / audit        │
//	└─────────────────────────────────────────────────────┘
//	                        │
//	                        ▼
//	┌─────────────────────────────────────────────────────┐
//	│        domain/repository (interfaces)               │
//	└─────────────────────────────────────────────────────┘
//	               │                        │
//	               ▼                        ▼
//	       store/memory               store/pg
//
// Convenciones:
//   - Context siempre es el primer parámetro.
//   - ErrNotFound cuando la fila no existe; ConflictError ante unique violations.
//   - Los pares de asignación (user,role) y (role,permission) son únicos a nivel
//     de storage; insertar un par existente retorna created=false sin error.
package repository
