package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"bazaar/auction"
	"bazaar/market"
)

// Place a bid on an auction
// (POST /auctions/:id/bids)
func (impl *ServerImpl) PostAuctionBid(c *gin.Context) {
	const op = "PostAuctionBid"
	var req bidRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := impl.service.PlaceBid(c.Request.Context(), c.Param("id"), auction.BidRequest{
		BidderName:  req.BidderName,
		BidderEmail: req.BidderEmail,
		Amount:      *req.BidAmount,
	})
	if err != nil {
		impl.writeError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, newBidResponse(result))
}

// Get the bid history of an auction, newest first
// (GET /auctions/:id/bids)
func (impl *ServerImpl) GetAuctionBids(c *gin.Context) {
	const op = "GetAuctionBids"
	history, err := impl.service.BidHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		impl.writeError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, newBidHistoryResponse(history))
}

// Subscribe to live events of an auction
// (GET /auctions/:id/events)
func (impl *ServerImpl) GetAuctionEvents(c *gin.Context) {
	const op = "GetAuctionEvents"
	// 商品不存在時不建立串流
	id := c.Param("id")
	if _, err := impl.service.GetListing(c.Request.Context(), id); err != nil {
		impl.writeError(c, op, err)
		return
	}
	impl.hub.Stream(c, id, impl.options.keepAlive)
}

// List live auctions, soonest ending first
// (GET /auctions/active?page=&size=)
func (impl *ServerImpl) GetActiveAuctions(c *gin.Context) {
	const op = "GetActiveAuctions"
	page := market.Page{
		Number: queryInt(c, "page"),
		Size:   queryInt(c, "size"),
	}
	result, err := impl.service.ListActive(c.Request.Context(), page)
	if err != nil {
		impl.writeError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, activePageResponse{
		Items: newProductResponses(result.Items),
		Total: result.Total,
		Page:  result.Page.Number,
		Size:  result.Page.Size,
	})
}

// List products reserved for a winner
// (GET /auctions/reserved?email=)
func (impl *ServerImpl) GetReservedAuctions(c *gin.Context) {
	const op = "GetReservedAuctions"
	records, err := impl.service.ListReservedFor(c.Request.Context(), c.Query("email"))
	if err != nil {
		impl.writeError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": newProductResponses(records)})
}

// Settle all expired auctions
// (POST /auctions/process-expired)
func (impl *ServerImpl) PostProcessExpired(c *gin.Context) {
	const op = "PostProcessExpired"
	report, err := impl.service.RunSettlementSweep(c.Request.Context())
	if err != nil {
		impl.writeError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Reserve one ended auction for its winner
// (POST /auctions/:id/reserve)
func (impl *ServerImpl) PostAuctionReserve(c *gin.Context) {
	const op = "PostAuctionReserve"
	record, err := impl.service.Reserve(c.Request.Context(), c.Param("id"))
	if err != nil {
		impl.writeError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, newProductResponse(record))
}

// Notify the winner of one auction
// (POST /auctions/:id/notify-winner)
func (impl *ServerImpl) PostAuctionNotifyWinner(c *gin.Context) {
	const op = "PostAuctionNotifyWinner"
	result, err := impl.service.NotifyWinner(c.Request.Context(), c.Param("id"))
	if err != nil {
		impl.writeError(c, op, err)
		return
	}
	status := http.StatusOK
	if result.Error != "" {
		status = http.StatusBadGateway
	}
	c.JSON(status, result)
}

// Notify every reserved winner not yet notified
// (POST /auctions/notify-winners)
func (impl *ServerImpl) PostNotifyWinners(c *gin.Context) {
	const op = "PostNotifyWinners"
	report, err := impl.service.RunNotificationSweep(c.Request.Context())
	if err != nil {
		impl.writeError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Auction statistics by status
// (GET /auctions/stats)
func (impl *ServerImpl) GetAuctionStats(c *gin.Context) {
	const op = "GetAuctionStats"
	stats, err := impl.service.Stats(c.Request.Context())
	if err != nil {
		impl.writeError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// queryInt 讀取整數查詢參數，格式錯誤時視為未提供
func queryInt(c *gin.Context, key string) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return n
}
