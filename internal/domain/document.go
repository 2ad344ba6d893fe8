package domain

import (
	"time"

	"github.com/google/uuid"
)

// DocumentType represents the kind of supporting document attached to a dossier
type DocumentType string

const (
	DocumentCNI                DocumentType = "cni"
	DocumentBulletinSalaire    DocumentType = "bulletin_salaire"
	DocumentReleveBancaire     DocumentType = "releve_bancaire"
	DocumentAttestationTravail DocumentType = "attestation_travail"
	DocumentRegistreCommerce   DocumentType = "registre_commerce"
	DocumentBilan              DocumentType = "bilan"
	DocumentTitreFoncier       DocumentType = "titre_foncier"
	DocumentAutre              DocumentType = "autre"
)

// DocumentStatus represents the verification status of a document
type DocumentStatus string

const (
	DocumentStatusPending  DocumentStatus = "PENDING"
	DocumentStatusVerified DocumentStatus = "VERIFIED"
	DocumentStatusRejected DocumentStatus = "REJECTED"
)

// DocumentMeta holds the metadata the engine sees for a collected document.
// File storage itself is external; only the metadata participates in
// coherence checks and fraud rules.
type DocumentMeta struct {
	DocumentID      uuid.UUID      `json:"document_id" db:"document_id"`
	DossierID       uuid.UUID      `json:"dossier_id" db:"dossier_id"`
	Type            DocumentType   `json:"type" db:"type"`
	Filename        string         `json:"filename" db:"filename"`
	Status          DocumentStatus `json:"status" db:"status"`
	TamperSuspected bool           `json:"tamper_suspected" db:"tamper_suspected"`
	UploadedAt      time.Time      `json:"uploaded_at" db:"uploaded_at"`
}
