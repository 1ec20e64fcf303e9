package response

import (
	"math/rand/v2"
	"net/http"
	"reflect"

	"github.com/gin-gonic/gin"
)

var notFoundQuips = []string{
	"内容好像被人搬走了 o(╥﹏╥)o",
	"信号迷失在了图谱深处 ωω",
	"这个节点还没被收录进图谱里 (◞‸◟ )",
	"404, 记忆体里查无此物 (๐•̆ ·̭ •̆๐)",
	"嘿，这条边通向了虚无，不如换条路？",
	"请求已送达，但那里只有虚空 ଘ(੭ˊ꒳ˋ)੭✧",
	"集体记忆翻了个遍：真的没有 ( ´･ω･`)",
	"知识图谱正在生长，这一块还是空白 (ง •̀_•́)ง",
	"你找的节点可能从未被记住过 ∠(´д｀)",
	"这里是空白的，但你的好奇心不是 (ฅ´ω`ฅ)",
}

// Pagination metadata returned alongside paginated lists.
type Pagination struct {
	Total       int64 `json:"total"`         // rows matched, not rows returned
	CurrentPage int   `json:"current_page"`
	TotalPage   int   `json:"total_page"`
	Size        int   `json:"size"`
	HasNextPage bool  `json:"has_next_page"` // false on the last page
}

// fail writes the shared error envelope and aborts the handler chain.
func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"ok": 0, "code": status, "message": message})
}

// OK sends a 200. Slice payloads are wrapped in {"data": ...}; maps and
// structs go out as-is.
func OK(c *gin.Context, data interface{}) {
	payload := data
	if payload != nil && reflect.ValueOf(payload).Kind() == reflect.Slice {
		payload = gin.H{"data": payload}
	}
	c.JSON(http.StatusOK, payload)
}

// Paged sends one page of a list plus its pagination block.
func Paged(c *gin.Context, data interface{}, p Pagination) {
	c.JSON(http.StatusOK, gin.H{"data": data, "pagination": p})
}

// Created sends a 201 with the newly created resource.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// NoContent sends an empty 204.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func BadRequest(c *gin.Context, message string) {
	fail(c, http.StatusBadRequest, message)
}

// NotFound sends a 404 with a randomly picked playful message.
func NotFound(c *gin.Context) {
	fail(c, http.StatusNotFound, notFoundQuips[rand.IntN(len(notFoundQuips))])
}

// NotFoundMsg sends a 404 with a caller-provided message.
func NotFoundMsg(c *gin.Context, message string) {
	fail(c, http.StatusNotFound, message)
}

func MethodNotAllowed(c *gin.Context) {
	fail(c, http.StatusMethodNotAllowed, "Method Not Allowed")
}

func InternalError(c *gin.Context, err error) {
	fail(c, http.StatusInternalServerError, err.Error())
}

func UnprocessableEntity(c *gin.Context, message string) {
	fail(c, http.StatusUnprocessableEntity, message)
}

func Conflict(c *gin.Context, message string) {
	fail(c, http.StatusConflict, message)
}

func ServiceUnavailable(c *gin.Context, message string) {
	fail(c, http.StatusServiceUnavailable, message)
}
