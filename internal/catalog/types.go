// Package catalog implements the vendor API client used to build the task
// manifest: paged order listing plus per-order product aggregation.
package catalog

import "encoding/json"

// flexID tolerates the API returning identifiers as either JSON strings or
// numbers, which varies between endpoints.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

// pagination mirrors the API's envelope metadata.
type pagination struct {
	Count     int `json:"count"`
	PageCount int `json:"page_count"`
}

// Order is one entry in the paged order listing. Only the code is needed to
// look up its products.
type Order struct {
	Code flexID `json:"codigo"`
}

// OrderProduct links a catalog product to its ERP storage key.
type OrderProduct struct {
	ProductID  flexID `json:"produto_id"`
	StorageKey flexID `json:"codigo_erp"`
}

type ordersPage struct {
	Data       []Order    `json:"data"`
	Pagination pagination `json:"pagination"`
}

type orderProductsPage struct {
	Data []OrderProduct `json:"data"`
}

// ImageVariant is one rendition of a product image at a fixed pixel size.
type ImageVariant struct {
	Size     int    `json:"tamanho"`
	Location string `json:"localizacao"`
}

// Product is one entry in the paged product listing, carrying its available
// image renditions.
type Product struct {
	StorageKey flexID         `json:"codigo_erp"`
	Images     []ImageVariant `json:"imagemUrls"`
}

type productsPage struct {
	Success    bool       `json:"success"`
	Data       []Product  `json:"data"`
	Pagination pagination `json:"pagination"`
}
