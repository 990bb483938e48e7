// Package main estimates the camera motion between two RGB-D frames stored on disk.
package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"go.viam.com/fastvo/logging"
	"go.viam.com/fastvo/rimage"
	"go.viam.com/fastvo/rimage/transform"
	"go.viam.com/fastvo/vision/keypoints"
	"go.viam.com/fastvo/vision/odometry"
)

const (
	flagConfig = "config"
	flagRef    = "ref"
	flagDepth  = "depth"
	flagNext   = "next"
	flagPlot   = "plot"
	flagDebug  = "debug"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "estimate_motion",
		Usage: "estimate the camera motion from a reference RGB-D frame to a second color frame",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load the motion estimation configuration from `FILE`",
			},
			&cli.StringFlag{
				Name:     flagRef,
				Usage:    "reference color image",
				Required: true,
			},
			&cli.StringFlag{
				Name:     flagDepth,
				Usage:    "16 bit png or tiff depth of the reference image, aligned to it",
				Required: true,
			},
			&cli.StringFlag{
				Name:     flagNext,
				Usage:    "color image to estimate the motion to",
				Required: true,
			},
			&cli.StringFlag{
				Name:  flagPlot,
				Usage: "write the filtered matches to `FILE` as a png",
			},
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Action: estimateMotion,
	}
}

func estimateMotion(c *cli.Context) error {
	logger := logging.NewLogger("estimate_motion")
	if c.Bool(flagDebug) {
		logger = logging.NewDebugLogger("estimate_motion")
	}
	//nolint:errcheck
	defer logger.Sync()

	cfg := odometry.DefaultMotionEstimationConfig()
	if path := c.String(flagConfig); path != "" {
		var err error
		if cfg, err = odometry.LoadMotionEstimationConfig(path); err != nil {
			return err
		}
	}
	if cfg.CamIntrinsics == nil {
		return errors.New("the configuration has no intrinsic_parameters")
	}

	ref, err := readFrame(c.String(flagRef), c.String(flagDepth))
	if err != nil {
		return err
	}
	nextImg, err := rimage.ReadImageFromFile(c.String(flagNext))
	if err != nil {
		return err
	}
	// the second frame is only used for its color
	next, err := transform.NewDepthFrame(nextImg, rimage.NewEmptyDepthMap(nextImg.Bounds().Dx(), nextImg.Bounds().Dy()), nil)
	if err != nil {
		return err
	}

	trk, err := odometry.NewFastTracker(cfg, nil, ref, logger)
	if err != nil {
		return err
	}
	est, err := trk.GetPose(next)
	if err != nil {
		return err
	}
	aa := est.Pose.Orientation().AxisAngles()
	logger.Infow("estimated motion",
		"translation", est.Pose.Point(),
		"rotation_axis", []float64{aa.RX, aa.RY, aa.RZ},
		"rotation_angle", aa.Theta,
		"error_mean", est.Error.Mean,
		"error_std", est.Error.StdDev,
		"points_error_mean", est.PointsError.Mean,
		"points_error_std", est.PointsError.StdDev,
		"matches", est.Matches,
		"inliers", est.Inliers,
	)

	if out := c.String(flagPlot); out != "" {
		refImg, err := ref.Color()
		if err != nil {
			return err
		}
		if err := keypoints.PlotMatches(refImg, nextImg, trk.KeyPoints(), est.KeyPoints, est.MatchIndices, out); err != nil {
			return err
		}
		logger.Infow("wrote matches", "path", out)
	}
	return nil
}

func readFrame(colorPath, depthPath string) (*transform.DepthFrame, error) {
	img, err := rimage.ReadImageFromFile(colorPath)
	if err != nil {
		return nil, err
	}
	depth, err := rimage.ReadDepthMapFromFile(depthPath)
	if err != nil {
		return nil, err
	}
	return transform.NewDepthFrame(img, depth, nil)
}
