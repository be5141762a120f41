package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bazaar/auction"
)

// Create a product, optionally with an auction
// (POST /products)
func (impl *ServerImpl) PostProduct(c *gin.Context) {
	const op = "PostProduct"
	var req createProductRequest
	if !bindJSON(c, &req) {
		return
	}
	record, err := impl.service.CreateListing(c.Request.Context(), actorFrom(c), req.listing())
	if err != nil {
		impl.writeError(c, op, err)
		return
	}
	c.Header("Location", "/api/products/"+record.ID)
	c.JSON(http.StatusCreated, newProductResponse(record))
}

// Get product details
// (GET /products/:id)
func (impl *ServerImpl) GetProduct(c *gin.Context) {
	const op = "GetProduct"
	record, err := impl.service.GetListing(c.Request.Context(), c.Param("id"))
	if err != nil {
		impl.writeError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, newProductResponse(record))
}

// Update a product; frozen fields are reported back instead of failing
// (PATCH /products/:id)
func (impl *ServerImpl) PatchProduct(c *gin.Context) {
	const op = "PatchProduct"
	var req patchProductRequest
	if !bindJSON(c, &req) {
		return
	}
	record, ignored, err := impl.service.UpdateListing(c.Request.Context(), actorFrom(c), c.Param("id"), req.patch())
	if err != nil {
		impl.writeError(c, op, err)
		return
	}
	if ignored == nil {
		ignored = []string{}
	}
	c.JSON(http.StatusOK, updateProductResponse{
		Product:       newProductResponse(record),
		IgnoredFields: ignored,
	})
}

// Delete a product
// (DELETE /products/:id)
func (impl *ServerImpl) DeleteProduct(c *gin.Context) {
	const op = "DeleteProduct"
	if err := impl.service.DeleteListing(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
		impl.writeError(c, op, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Cancel a product that has no bids
// (POST /products/:id/cancel)
func (impl *ServerImpl) PostProductCancel(c *gin.Context) {
	const op = "PostProductCancel"
	record, err := impl.service.CancelListing(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		impl.writeError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, newProductResponse(record))
}

// Buy a product directly
// (POST /products/:id/purchase)
func (impl *ServerImpl) PostProductPurchase(c *gin.Context) {
	const op = "PostProductPurchase"
	var req purchaseRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	record, err := impl.service.Purchase(c.Request.Context(), c.Param("id"), auction.PurchaseRequest{
		BuyerName:  req.BuyerName,
		BuyerEmail: req.BuyerEmail,
		Quantity:   req.Quantity,
	})
	if err != nil {
		impl.writeError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, newProductResponse(record))
}
