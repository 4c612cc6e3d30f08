package models

// ImportRow is one parsed line of a bulk-import file.
type ImportRow struct {
	Nombre   string `json:"nombre"`
	Apellido string `json:"apellido"`
	DNI      string `json:"dni"`
}

// ImportRowError describes a rejected row and keeps the original data so
// the administrator can correct and re-submit it.
type ImportRowError struct {
	Linea int       `json:"linea"`
	Error string    `json:"error"`
	Datos ImportRow `json:"datos"`
}

// ImportExisting identifies a row whose DNI was already in the store.
type ImportExisting struct {
	DNI      string `json:"dni"`
	Nombre   string `json:"nombre"`
	Apellido string `json:"apellido"`
}

// ImportReport accumulates the outcome of a bulk import. Rows are
// independent: a failed row never rolls back an earlier success.
type ImportReport struct {
	Procesados     int              `json:"procesados"`
	Creados        int              `json:"creados"`
	Errores        []ImportRowError `json:"errores"`
	DNISDuplicados []string         `json:"dnis_duplicados"`
	DNISExistentes []ImportExisting `json:"dnis_existentes"`
}
