package main

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/garment_backend/models"
	"bitbucket.org/mmdatafocus/garment_backend/utils"
	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	maxUploadBytes = 10 << 20
	thumbnailWidth = 320
)

// uploadProductImageHandler stores a product photo plus a generated
// thumbnail and attaches both URLs to the finished product.
func uploadProductImageHandler(c *gin.Context) {
	productId, ok := pathId(c)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
		return
	}
	if fileHeader.Size > maxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image exceeds 10MB limit"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		abortWithError(c, err)
		return
	}
	defer file.Close()

	img, err := imaging.Decode(file, imaging.AutoOrientation(true))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported image format"})
		return
	}

	var full bytes.Buffer
	if err := jpeg.Encode(&full, img, &jpeg.Options{Quality: 90}); err != nil {
		abortWithError(c, err)
		return
	}

	thumb := imaging.Resize(img, thumbnailWidth, 0, imaging.Lanczos)
	var thumbBuf bytes.Buffer
	if err := jpeg.Encode(&thumbBuf, thumb, &jpeg.Options{Quality: 80}); err != nil {
		abortWithError(c, err)
		return
	}

	base := strings.TrimSuffix(filepath.Base(fileHeader.Filename), filepath.Ext(fileHeader.Filename))
	stamp := time.Now().Format("20060102")
	objectName := fmt.Sprintf("products/%d/%s-%s-%s.jpg", productId, stamp, base, uuid.NewString()[:8])
	thumbName := fmt.Sprintf("products/%d/thumbs/%s-%s-%s.jpg", productId, stamp, base, uuid.NewString()[:8])

	imageUrl, err := utils.SaveImage(c.Request.Context(), objectName, full.Bytes())
	if err != nil {
		abortWithError(c, err)
		return
	}
	thumbnailUrl, err := utils.SaveImage(c.Request.Context(), thumbName, thumbBuf.Bytes())
	if err != nil {
		abortWithError(c, err)
		return
	}

	productImage, err := models.AddProductImage(c.Request.Context(), productId, imageUrl, thumbnailUrl)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, productImage)
}
