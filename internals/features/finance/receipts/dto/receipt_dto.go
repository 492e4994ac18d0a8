package dto

type AttachReceiptURLRequest struct {
	URL string `json:"url" validate:"required,url"`
}
